// Package matching casa uma aposta pendente com quem a aceita.
//
// O lock distribuído bet:{id} só corta cedo a disputa; quem garante um único
// match por aposta é a trava de linha dentro da transação. Tudo que o aceite
// escreve (contra-aposta, vínculos, escrow, holds) vai no mesmo commit.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/escrow"
	"github.com/radieske/p2p-bet-exchange/internal/shared/lock"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/ledger"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

// Engine executa AcceptBet
type Engine struct {
	Store   store.Store
	Locker  lock.Locker
	Wallet  *ledger.Ledger
	Escrow  *escrow.Ledger
	Log     *zap.Logger
	LockTTL time.Duration

	Now   func() time.Time
	NewID func() string

	// Events recebe bet_matched depois do commit (opcional)
	Events interface {
		PublishBetMatched(context.Context, events.BetMatched) error
	}

	OnMatched   func()       // métricas
	OnRejected  func(string) // métricas por motivo
	OnInvariant func(string) // métricas
}

// Result é o par casado e o escrow que o sustenta
type Result struct {
	Original model.Bet
	Matched  model.Bet
	Escrow   model.Escrow
}

func New(s store.Store, l lock.Locker, w *ledger.Ledger, e *escrow.Ledger, log *zap.Logger) *Engine {
	return &Engine{
		Store:   s,
		Locker:  l,
		Wallet:  w,
		Escrow:  e,
		Log:     log,
		LockTTL: lock.DefaultTTL,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   uuid.NewString,
	}
}

// AcceptBet casa betID com userID do lado oposto
func (e *Engine) AcceptBet(ctx context.Context, userID, betID string) (Result, error) {
	key := lock.BetKey(betID)
	token, ok, err := e.Locker.Acquire(ctx, key, e.LockTTL)
	switch {
	case err != nil:
		// sem Redis seguimos só com a trava de linha, que basta para a corretude
		e.Log.Warn("distributed lock unavailable, relying on row locks", zap.String("betId", betID), zap.Error(err))
	case !ok:
		e.reject(betID, userID, model.ErrContended)
		return Result{}, fmt.Errorf("accept bet %s: %w", betID, model.ErrContended)
	default:
		defer e.release(ctx, key, token)
	}

	var res Result
	err = e.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = e.accept(ctx, tx, userID, betID)
		return err
	})
	if err != nil {
		e.reject(betID, userID, err)
		return Result{}, fmt.Errorf("accept bet %s: %w", betID, err)
	}

	if e.OnMatched != nil {
		e.OnMatched()
	}
	e.Log.Info("bet matched",
		zap.String("betId", res.Original.ID),
		zap.String("matchedBetId", res.Matched.ID),
		zap.String("escrowId", res.Escrow.ID),
		zap.String("acceptedBy", userID),
		zap.String("totalHeld", res.Escrow.TotalHeld.StringFixed(model.MoneyPlaces)),
	)
	e.publish(ctx, res, userID)
	return res, nil
}

func (e *Engine) accept(ctx context.Context, tx store.Tx, userID, betID string) (Result, error) {
	now := e.Now()

	original, err := tx.GetBetForUpdate(ctx, betID)
	if err != nil {
		return Result{}, err
	}
	if original.UserID == userID {
		return Result{}, model.ErrSelfMatch
	}
	switch original.Status {
	case model.BetMatched, model.BetSettled:
		return Result{}, model.ErrAlreadyMatched
	case model.BetCancelled, model.BetExpired:
		return Result{}, model.ErrNoLongerAvailable
	}
	if !original.MatchStartTime.After(now) {
		return Result{}, model.ErrMatchStarted
	}

	// ordem crescente de userID: dois aceites cruzados não entram em deadlock
	accounts, err := store.LockAccounts(ctx, tx, original.UserID, userID)
	if err != nil {
		return Result{}, err
	}

	required := model.CounterLiability(original.Side, original.Stake, original.Odds)
	if avail := accounts[userID].Available(); avail.LessThan(required) {
		return Result{}, fmt.Errorf("available %s, required %s: %w", avail, required, model.ErrInsufficientFunds)
	}

	// contra-aposta nasce MATCHED e já com os vínculos finais
	counterpart := model.Bet{
		ID:             e.NewID(),
		UserID:         userID,
		MatchID:        original.MatchID,
		MatchTitle:     original.MatchTitle,
		MatchStartTime: original.MatchStartTime,
		Side:           original.Side.Opposite(),
		Outcome:        original.Outcome,
		Odds:           original.Odds,
		Stake:          original.Stake,
		Liability:      required,
		Status:         model.BetMatched,
		MatchedBetID:   original.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	esc, err := e.Escrow.Open(ctx, tx, original, counterpart)
	if err != nil {
		return Result{}, err
	}
	counterpart.EscrowID = esc.ID
	if err := tx.InsertBet(ctx, counterpart); err != nil {
		return Result{}, err
	}

	if err := original.Transition(model.BetMatched); err != nil {
		return Result{}, err
	}
	original.MatchedBetID = counterpart.ID
	original.EscrowID = esc.ID
	original.UpdatedAt = now
	if err := tx.UpdateBet(ctx, original); err != nil {
		return Result{}, err
	}

	if err := e.Wallet.MoveToEscrow(ctx, tx, original.UserID, original.Liability, original.ID); err != nil {
		return Result{}, fmt.Errorf("hold owner funds: %w", err)
	}
	if err := e.Wallet.MoveToEscrow(ctx, tx, userID, counterpart.Liability, counterpart.ID); err != nil {
		return Result{}, fmt.Errorf("hold acceptor funds: %w", err)
	}

	return Result{Original: original, Matched: counterpart, Escrow: esc}, nil
}

// release roda no defer; erro aqui só é logado, o TTL limpa a chave
func (e *Engine) release(ctx context.Context, key, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	released, err := e.Locker.Release(rctx, key, token)
	if err != nil {
		e.Log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !released {
		e.Log.Warn("lock expired before release", zap.String("key", key))
	}
}

func (e *Engine) reject(betID, userID string, err error) {
	code := model.Code(err)
	if model.IsInvariant(err) {
		e.Log.Error("accept bet invariant violation", zap.String("betId", betID), zap.Error(err))
		if e.OnInvariant != nil {
			e.OnInvariant("matching")
		}
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = "timeout"
	}
	e.Log.Debug("accept bet rejected", zap.String("betId", betID), zap.String("userId", userID), zap.String("reason", code))
	if e.OnRejected != nil {
		e.OnRejected(code)
	}
}

// publish é best effort: o match já está commitado
func (e *Engine) publish(ctx context.Context, res Result, acceptedBy string) {
	if e.Events == nil {
		return
	}
	ev := events.BetMatched{
		BetID:          res.Original.ID,
		MatchedBetID:   res.Matched.ID,
		EscrowID:       res.Escrow.ID,
		MatchID:        res.Original.MatchID,
		BackerUserID:   res.Escrow.BackerUserID,
		LayerUserID:    res.Escrow.LayerUserID,
		TotalHeld:      res.Escrow.TotalHeld,
		AcceptedByUser: acceptedBy,
	}
	if err := e.Events.PublishBetMatched(ctx, ev); err != nil {
		e.Log.Warn("publish bet_matched failed", zap.String("betId", ev.BetID), zap.Error(err))
	}
}
