// Package settlement fecha pares casados quando o resultado da partida chega.
// Idempotência vem do próprio estado: só aposta MATCHED pode ser liquidada,
// então uma segunda entrega do mesmo resultado devolve ErrNotSettleable sem
// mexer em nada.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/escrow"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/ledger"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

// DefaultFeePercent é a taxa padrão da plataforma sobre o pote
var DefaultFeePercent = decimal.NewFromInt(5)

type Engine struct {
	Store  store.Store
	Wallet *ledger.Ledger
	Escrow *escrow.Ledger
	Log    *zap.Logger

	FeePercent decimal.Decimal
	// DebitLoser troca o fluxo de saldo pelo modo conservativo:
	// perdedor é debitado da liability e o vencedor recebe só o líquido do pote alheio.
	DebitLoser bool

	Now func() time.Time

	Events interface {
		PublishBetSettled(context.Context, events.BetSettled) error
	}

	OnSettled   func(kind string) // métricas: "settled" | "void"
	OnInvariant func(string)
}

// Result resume o fechamento de um par
type Result struct {
	BetID        string
	MatchedBetID string
	EscrowID     string
	MatchID      string
	Outcome      model.Outcome
	Void         bool
	WinnerID     string
	WinnerPayout decimal.Decimal
	PlatformFee  decimal.Decimal
}

func New(s store.Store, w *ledger.Ledger, e *escrow.Ledger, log *zap.Logger) *Engine {
	return &Engine{
		Store:      s,
		Wallet:     w,
		Escrow:     e,
		Log:        log,
		FeePercent: DefaultFeePercent,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Settle liquida o par de betID com o resultado real
func (e *Engine) Settle(ctx context.Context, betID string, actual model.Outcome) (Result, error) {
	if !actual.Valid() {
		return Result{}, fmt.Errorf("settle bet %s: outcome %q: %w", betID, actual, model.ErrInvalidBet)
	}
	var res Result
	err := e.withPair(ctx, betID, func(tx store.Tx, bet, other model.Bet) error {
		var err error
		res, err = e.settle(ctx, tx, bet, other, actual)
		return err
	})
	if err != nil {
		return Result{}, e.fail("settle", betID, err)
	}

	e.Log.Info("bet settled",
		zap.String("betId", res.BetID),
		zap.String("matchedBetId", res.MatchedBetID),
		zap.String("outcome", string(actual)),
		zap.String("winnerId", res.WinnerID),
		zap.String("payout", res.WinnerPayout.StringFixed(model.MoneyPlaces)),
		zap.String("fee", res.PlatformFee.StringFixed(model.MoneyPlaces)),
	)
	if e.OnSettled != nil {
		e.OnSettled("settled")
	}
	e.publish(ctx, res)
	return res, nil
}

// Void anula o par: escrow REFUNDED, as duas pernas SETTLED sem resultado e
// payout 0, holds devolvidos. Contadores de vitórias/derrotas não mudam.
func (e *Engine) Void(ctx context.Context, betID string) (Result, error) {
	var res Result
	err := e.withPair(ctx, betID, func(tx store.Tx, bet, other model.Bet) error {
		var err error
		res, err = e.void(ctx, tx, bet, other)
		return err
	})
	if err != nil {
		return Result{}, e.fail("void", betID, err)
	}

	e.Log.Info("bet voided", zap.String("betId", res.BetID), zap.String("matchedBetId", res.MatchedBetID))
	if e.OnSettled != nil {
		e.OnSettled("void")
	}
	e.publish(ctx, res)
	return res, nil
}

// withPair trava as duas pernas em ordem crescente de id e valida o vínculo.
// A ordem fixa evita deadlock quando as duas pernas são liquidadas ao mesmo tempo.
func (e *Engine) withPair(ctx context.Context, betID string, fn func(tx store.Tx, bet, other model.Bet) error) error {
	peek, err := e.Store.GetBet(ctx, betID)
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrNotSettleable
	}
	if err != nil {
		return err
	}
	if peek.MatchedBetID == "" {
		return model.ErrNotSettleable
	}

	return e.Store.InTx(ctx, func(tx store.Tx) error {
		ids := []string{betID, peek.MatchedBetID}
		sort.Strings(ids)
		locked := make(map[string]model.Bet, 2)
		for _, id := range ids {
			b, err := tx.GetBetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = b
		}

		bet, other := locked[betID], locked[peek.MatchedBetID]
		if bet.Status != model.BetMatched {
			return model.ErrNotSettleable
		}
		if other.Status != model.BetMatched || other.MatchedBetID != bet.ID || other.EscrowID != bet.EscrowID {
			return model.Invariant("settlement.pair", "bet %s and %s are not a consistent matched pair", bet.ID, other.ID)
		}
		return fn(tx, bet, other)
	})
}

func (e *Engine) settle(ctx context.Context, tx store.Tx, bet, other model.Bet, actual model.Outcome) (Result, error) {
	now := e.Now()

	winner, loser := bet, other
	if !model.Wins(bet.Side, bet.Outcome, actual) {
		winner, loser = other, bet
	}

	esc, err := tx.GetEscrowForUpdate(ctx, bet.EscrowID)
	if err != nil {
		return Result{}, err
	}
	fee, payout := model.PlatformFee(esc.TotalHeld, e.FeePercent)
	if esc, err = e.Escrow.Release(ctx, tx, esc.ID, winner.UserID, payout, fee); err != nil {
		return Result{}, err
	}

	for _, leg := range []struct {
		bet    model.Bet
		payout decimal.Decimal
	}{{winner, payout}, {loser, decimal.Zero}} {
		b := leg.bet
		if err := b.Transition(model.BetSettled); err != nil {
			return Result{}, err
		}
		b.ActualResult = actual
		b.Payout = decimal.NewNullDecimal(leg.payout)
		b.SettledAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateBet(ctx, b); err != nil {
			return Result{}, err
		}
	}

	if _, err := store.LockAccounts(ctx, tx, winner.UserID, loser.UserID); err != nil {
		return Result{}, err
	}
	if err := e.moveFunds(ctx, tx, winner, loser, payout); err != nil {
		return Result{}, err
	}
	if err := e.count(ctx, tx, winner.UserID, true); err != nil {
		return Result{}, err
	}
	if err := e.count(ctx, tx, loser.UserID, false); err != nil {
		return Result{}, err
	}

	return Result{
		BetID:        bet.ID,
		MatchedBetID: other.ID,
		EscrowID:     esc.ID,
		MatchID:      bet.MatchID,
		Outcome:      actual,
		WinnerID:     winner.UserID,
		WinnerPayout: payout,
		PlatformFee:  fee,
	}, nil
}

// moveFunds aplica o efeito de saldo do settlement.
//
// Padrão: a liberação do escrow do vencedor credita a própria liability e o
// BET_WON completa até winnerPayout; o saldo do perdedor não muda.
// DebitLoser: ninguém recebe crédito de escrow; o perdedor perde a liability
// (BET_LOST) e o vencedor ganha winnerPayout - liability (BET_WON).
func (e *Engine) moveFunds(ctx context.Context, tx store.Tx, winner, loser model.Bet, payout decimal.Decimal) error {
	if err := e.Wallet.ReleaseFromEscrow(ctx, tx, winner.UserID, winner.Liability, winner.ID, !e.DebitLoser); err != nil {
		return err
	}
	if err := e.Wallet.ReleaseFromEscrow(ctx, tx, loser.UserID, loser.Liability, loser.ID, false); err != nil {
		return err
	}

	// LAY vencedor com odds acima de 100/fee: a taxa supera o stake do
	// backer e o acerto líquido é um débito, lançado como PLATFORM_FEE
	typ, desc := model.TxBetWon, "Bet won - winnings for "+winner.ID
	won := payout.Sub(winner.Liability)
	if won.IsNegative() {
		typ, desc = model.TxPlatformFee, "Bet won - platform fee above winnings for "+winner.ID
	}
	if !won.IsZero() {
		if _, err := e.Wallet.ApplyDelta(ctx, tx, winner.UserID, won, typ, winner.ID, desc); err != nil {
			return err
		}
	}
	if e.DebitLoser {
		if _, err := e.Wallet.ApplyDelta(ctx, tx, loser.UserID, loser.Liability.Neg(), model.TxBetLost, loser.ID,
			"Bet lost - liability paid for "+loser.ID); err != nil {
			return err
		}
	}
	return nil
}

// count atualiza os contadores vitalícios na linha já travada
func (e *Engine) count(ctx context.Context, tx store.Tx, userID string, won bool) error {
	acc, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	acc.TotalBets++
	if won {
		acc.WonBets++
	} else {
		acc.LostBets++
	}
	acc.UpdatedAt = e.Now()
	return tx.UpdateAccount(ctx, acc)
}

func (e *Engine) void(ctx context.Context, tx store.Tx, bet, other model.Bet) (Result, error) {
	now := e.Now()

	esc, err := e.Escrow.Refund(ctx, tx, bet.EscrowID)
	if err != nil {
		return Result{}, err
	}
	for _, b := range []model.Bet{bet, other} {
		if err := b.Transition(model.BetSettled); err != nil {
			return Result{}, err
		}
		b.Payout = decimal.NewNullDecimal(decimal.Zero)
		b.SettledAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateBet(ctx, b); err != nil {
			return Result{}, err
		}
	}

	if _, err := store.LockAccounts(ctx, tx, bet.UserID, other.UserID); err != nil {
		return Result{}, err
	}
	for _, b := range []model.Bet{bet, other} {
		if err := e.Wallet.RefundEscrow(ctx, tx, b.UserID, b.Liability, b.ID); err != nil {
			return Result{}, err
		}
	}

	return Result{
		BetID:        bet.ID,
		MatchedBetID: other.ID,
		EscrowID:     esc.ID,
		MatchID:      bet.MatchID,
		Void:         true,
		WinnerPayout: decimal.Zero,
		PlatformFee:  decimal.Zero,
	}, nil
}

func (e *Engine) fail(op, betID string, err error) error {
	if model.IsInvariant(err) {
		e.Log.Error("settlement invariant violation", zap.String("op", op), zap.String("betId", betID), zap.Error(err))
		if e.OnInvariant != nil {
			e.OnInvariant("settlement")
		}
	}
	return fmt.Errorf("%s bet %s: %w", op, betID, err)
}

// publish é best effort: o settlement já está commitado
func (e *Engine) publish(ctx context.Context, res Result) {
	if e.Events == nil {
		return
	}
	ev := events.BetSettled{
		BetID:         res.BetID,
		MatchedBetID:  res.MatchedBetID,
		EscrowID:      res.EscrowID,
		MatchID:       res.MatchID,
		ActualOutcome: string(res.Outcome),
		Void:          res.Void,
		WinnerID:      res.WinnerID,
		WinnerPayout:  res.WinnerPayout,
		PlatformFee:   res.PlatformFee,
	}
	if err := e.Events.PublishBetSettled(ctx, ev); err != nil {
		e.Log.Warn("publish bet_settled failed", zap.String("betId", ev.BetID), zap.Error(err))
	}
}
