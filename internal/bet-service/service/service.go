// Package service cobre o ciclo de vida da aposta fora do matching e do
// settlement: publicação, cancelamento, expiração e consultas.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/lock"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

const (
	DefaultFeedLimit = 50
	expireBatch      = 100
)

var (
	MinOdds         = decimal.RequireFromString("1.01")
	MaxOdds         = decimal.NewFromInt(1000)
	DefaultMinStake = decimal.NewFromInt(10)
)

type Service struct {
	Store  store.Store
	Locker lock.Locker
	Log    *zap.Logger

	MinStake    decimal.Decimal
	FrontendURL string
	LockTTL     time.Duration

	Now   func() time.Time
	NewID func() string

	Events interface {
		PublishBetCreated(context.Context, events.BetCreated) error
	}

	OnCreated func()    // métricas
	OnExpired func(int) // métricas: apostas expiradas por varredura
}

// CreateBetCommand é a oferta que o usuário quer publicar
type CreateBetCommand struct {
	MatchID        string
	MatchTitle     string
	MatchStartTime time.Time
	Side           model.Side
	Outcome        model.Outcome
	Odds           decimal.Decimal
	Stake          decimal.Decimal
	IsPublic       bool
}

// Created devolve a aposta e, se privada, o link do desafio
type Created struct {
	Bet           model.Bet
	ChallengeLink string
}

func New(s store.Store, l lock.Locker, log *zap.Logger) *Service {
	return &Service{
		Store:    s,
		Locker:   l,
		Log:      log,
		MinStake: DefaultMinStake,
		LockTTL:  lock.DefaultTTL,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

func (s *Service) validate(cmd CreateBetCommand, now time.Time) error {
	switch {
	case strings.TrimSpace(cmd.MatchID) == "" || strings.TrimSpace(cmd.MatchTitle) == "":
		return fmt.Errorf("match id and title are required: %w", model.ErrInvalidBet)
	case !cmd.Side.Valid():
		return fmt.Errorf("side %q: %w", cmd.Side, model.ErrInvalidBet)
	case !cmd.Outcome.Valid():
		return fmt.Errorf("outcome %q: %w", cmd.Outcome, model.ErrInvalidBet)
	case cmd.Odds.LessThan(MinOdds) || cmd.Odds.GreaterThan(MaxOdds):
		return fmt.Errorf("odds %s outside [%s, %s]: %w", cmd.Odds, MinOdds, MaxOdds, model.ErrInvalidBet)
	case cmd.Stake.LessThan(s.MinStake):
		return fmt.Errorf("stake %s below minimum %s: %w", cmd.Stake, s.MinStake, model.ErrInvalidBet)
	case !cmd.MatchStartTime.After(now):
		return model.ErrMatchStarted
	}
	return nil
}

// CreateBet publica uma oferta PENDING. Só confere o saldo disponível:
// nada vai para escrow antes do aceite.
func (s *Service) CreateBet(ctx context.Context, userID string, cmd CreateBetCommand) (Created, error) {
	now := s.Now()
	if err := s.validate(cmd, now); err != nil {
		return Created{}, err
	}
	cmd.Stake = cmd.Stake.Round(model.MoneyPlaces)
	cmd.Odds = cmd.Odds.Round(model.MoneyPlaces)

	acc, err := s.Store.GetAccount(ctx, userID)
	if err != nil {
		return Created{}, fmt.Errorf("create bet: %w", err)
	}
	liability := model.Liability(cmd.Side, cmd.Stake, cmd.Odds)
	if acc.Available().LessThan(liability) {
		return Created{}, fmt.Errorf("available %s, liability %s: %w", acc.Available(), liability, model.ErrInsufficientFunds)
	}

	b := model.Bet{
		ID:             s.NewID(),
		UserID:         userID,
		MatchID:        cmd.MatchID,
		MatchTitle:     cmd.MatchTitle,
		MatchStartTime: cmd.MatchStartTime.UTC(),
		Side:           cmd.Side,
		Outcome:        cmd.Outcome,
		Odds:           cmd.Odds,
		Stake:          cmd.Stake,
		Liability:      liability,
		Status:         model.BetPending,
		IsPublic:       cmd.IsPublic,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !cmd.IsPublic {
		b.ChallengeToken = challengeToken()
	}

	if err := s.Store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertBet(ctx, b)
	}); err != nil {
		return Created{}, fmt.Errorf("create bet: %w", err)
	}

	if s.OnCreated != nil {
		s.OnCreated()
	}
	s.Log.Info("bet created",
		zap.String("betId", b.ID),
		zap.String("userId", userID),
		zap.String("side", string(b.Side)),
		zap.String("liability", b.Liability.StringFixed(model.MoneyPlaces)),
		zap.Bool("public", b.IsPublic),
	)
	s.publishCreated(ctx, b)

	out := Created{Bet: b}
	if b.ChallengeToken != "" {
		out.ChallengeLink = s.ChallengeLink(b.ChallengeToken)
	}
	return out, nil
}

// ChallengeLink monta a URL do desafio privado
func (s *Service) ChallengeLink(token string) string {
	return strings.TrimRight(s.FrontendURL, "/") + "/challenge/" + token
}

// challengeToken gera "bet-" + 8 hex
func challengeToken() string {
	return "bet-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// CancelBet retira uma oferta ainda pendente. Usa o mesmo lock do matching,
// então um cancelamento nunca corre junto com um aceite.
func (s *Service) CancelBet(ctx context.Context, userID, betID string) (model.Bet, error) {
	key := lock.BetKey(betID)
	token, ok, err := s.Locker.Acquire(ctx, key, s.LockTTL)
	switch {
	case err != nil:
		s.Log.Warn("distributed lock unavailable, relying on row locks", zap.String("betId", betID), zap.Error(err))
	case !ok:
		return model.Bet{}, fmt.Errorf("cancel bet %s: %w", betID, model.ErrContended)
	default:
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if _, err := s.Locker.Release(rctx, key, token); err != nil {
				s.Log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	var out model.Bet
	err = s.Store.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.GetBetForUpdate(ctx, betID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return model.ErrNotFound // aposta alheia não é revelada
		}
		if b.Status != model.BetPending {
			return model.ErrNoLongerAvailable
		}
		if err := b.Transition(model.BetCancelled); err != nil {
			return err
		}
		b.UpdatedAt = s.Now()
		out = b
		return tx.UpdateBet(ctx, b)
	})
	if err != nil {
		return model.Bet{}, fmt.Errorf("cancel bet %s: %w", betID, err)
	}
	s.Log.Info("bet cancelled", zap.String("betId", betID), zap.String("userId", userID))
	return out, nil
}

// ExpireStarted marca como EXPIRED as ofertas pendentes cuja partida já começou
func (s *Service) ExpireStarted(ctx context.Context) (int, error) {
	total := 0
	for {
		now := s.Now()
		ids, err := s.Store.ListStartedPending(ctx, now, expireBatch)
		if err != nil {
			return total, fmt.Errorf("list started pending: %w", err)
		}
		expired := 0
		for _, id := range ids {
			changed := false
			err := s.Store.InTx(ctx, func(tx store.Tx) error {
				b, err := tx.GetBetForUpdate(ctx, id)
				if err != nil {
					return err
				}
				// pode ter sido casada/cancelada entre a listagem e a trava
				if b.Status != model.BetPending || b.MatchStartTime.After(now) {
					return nil
				}
				if err := b.Transition(model.BetExpired); err != nil {
					return err
				}
				b.UpdatedAt = now
				changed = true
				return tx.UpdateBet(ctx, b)
			})
			if err != nil {
				return total + expired, fmt.Errorf("expire bet %s: %w", id, err)
			}
			if changed {
				expired++
			}
		}
		total += expired
		if len(ids) < expireBatch || expired == 0 {
			break
		}
	}
	if total > 0 {
		s.Log.Info("expired started bets", zap.Int("count", total))
		if s.OnExpired != nil {
			s.OnExpired(total)
		}
	}
	return total, nil
}

// RunExpirySweeper executa ExpireStarted a cada interval até o ctx acabar
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.ExpireStarted(ctx); err != nil && ctx.Err() == nil {
				s.Log.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Available lista o feed público
func (s *Service) Available(ctx context.Context, limit int) ([]model.Bet, error) {
	if limit <= 0 || limit > DefaultFeedLimit {
		limit = DefaultFeedLimit
	}
	return s.Store.ListAvailableBets(ctx, s.Now(), limit)
}

func (s *Service) UserBets(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.Store.ListUserBets(ctx, userID)
}

func (s *Service) Bet(ctx context.Context, id string) (model.Bet, error) {
	return s.Store.GetBet(ctx, id)
}

// ByChallenge resolve o token de um desafio privado ainda pendente
func (s *Service) ByChallenge(ctx context.Context, token string) (model.Bet, error) {
	return s.Store.GetBetByChallenge(ctx, token)
}

func (s *Service) publishCreated(ctx context.Context, b model.Bet) {
	if s.Events == nil {
		return
	}
	ev := events.BetCreated{
		BetID:          b.ID,
		UserID:         b.UserID,
		MatchID:        b.MatchID,
		MatchStartTime: b.MatchStartTime,
		Side:           string(b.Side),
		Outcome:        string(b.Outcome),
		Odds:           b.Odds,
		Stake:          b.Stake,
		Liability:      b.Liability,
		IsPublic:       b.IsPublic,
	}
	if err := s.Events.PublishBetCreated(ctx, ev); err != nil {
		s.Log.Warn("publish bet_created failed", zap.String("betId", b.ID), zap.Error(err))
	}
}
