// Package consumer liga o feed de resultados (Kafka match_results) ao
// settlement. Cada par casado da partida é liquidado ou anulado uma vez;
// reentregas caem no guard NotSettleable.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/settlement"
	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

const (
	DefaultRetries = 3
	DefaultBackoff = 300 * time.Millisecond
)

var errBadResult = errors.New("invalid match result")

type Settler interface {
	Settle(ctx context.Context, betID string, actual model.Outcome) (settlement.Result, error)
	Void(ctx context.Context, betID string) (settlement.Result, error)
}

type MatchedBets interface {
	ListMatchedBets(ctx context.Context, matchID string) ([]model.Bet, error)
}

// Processor consome match_results e dispara o settlement de cada par
type Processor struct {
	Log     *zap.Logger
	Reader  kafka.MessageReader
	DLQ     kafka.MessageWriter // opcional
	Bets    MatchedBets
	Settler Settler

	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas
	OnPairs    func(int)    // métricas: pares liquidados por mensagem
	OnError    func(string) // métricas por fase
}

func New(log *zap.Logger, r kafka.MessageReader, bets MatchedBets, s Settler) *Processor {
	return &Processor{
		Log:     log,
		Reader:  r,
		Bets:    bets,
		Settler: s,
		Retries: DefaultRetries,
		Backoff: DefaultBackoff,
	}
}

// Run consome até o contexto ser cancelado. O offset é commitado só depois
// do settlement (ou do envio à DLQ): se o worker cair no meio, o resultado é
// reentregue e os pares já fechados caem no guard NotSettleable.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.consume(ctx, m); err != nil {
			// sem commit: a mensagem volta após o restart
			return err
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

// consume devolve erro apenas quando a mensagem não pode ser commitada:
// contexto cancelado ou falha ao gravar na DLQ
func (p *Processor) consume(ctx context.Context, m kafka.Message) error {
	var ev events.MatchResult
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid match result", zap.Error(err))
		p.fail("decode")
		return p.deadLetter(ctx, string(m.Key), m.Value)
	}

	n, err := p.process(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Log.Error("settle match failed", zap.String("matchId", ev.MatchID), zap.Error(err))
		p.fail("settle")
		return p.deadLetter(ctx, ev.MatchID, m.Value)
	}
	if p.OnPairs != nil {
		p.OnPairs(n)
	}
	return nil
}

// process aplica Handle com retry linear; resultado inválido e violação de
// invariante não são repetidos
func (p *Processor) process(ctx context.Context, ev events.MatchResult) (int, error) {
	n, err := p.Handle(ctx, ev)
	for i := 0; retryable(err) && i < p.Retries; i++ {
		if !sleep(ctx, p.Backoff*time.Duration(i+1)) {
			return n, ctx.Err()
		}
		var more int
		more, err = p.Handle(ctx, ev)
		n += more
	}
	return n, err
}

// Handle liquida (ou anula) todos os pares casados da partida e devolve
// quantos pares foram efetivamente processados nesta chamada.
func (p *Processor) Handle(ctx context.Context, ev events.MatchResult) (int, error) {
	outcome := model.Outcome(ev.Outcome)
	if ev.MatchID == "" || (!ev.Void && !outcome.Valid()) {
		return 0, fmt.Errorf("match %q outcome %q: %w", ev.MatchID, ev.Outcome, errBadResult)
	}

	bets, err := p.Bets.ListMatchedBets(ctx, ev.MatchID)
	if err != nil {
		return 0, fmt.Errorf("list matched bets %s: %w", ev.MatchID, err)
	}

	done := make(map[string]bool, len(bets))
	n := 0
	for _, b := range bets {
		// as duas pernas aparecem na listagem; um settlement cobre o par
		if done[b.ID] {
			continue
		}
		done[b.ID], done[b.MatchedBetID] = true, true

		if ev.Void {
			_, err = p.Settler.Void(ctx, b.ID)
		} else {
			_, err = p.Settler.Settle(ctx, b.ID, outcome)
		}
		switch {
		case err == nil:
			n++
		case errors.Is(err, model.ErrNotSettleable):
			p.Log.Debug("pair already settled", zap.String("betId", b.ID))
		default:
			return n, fmt.Errorf("bet %s: %w", b.ID, err)
		}
	}
	p.Log.Info("match settled",
		zap.String("matchId", ev.MatchID),
		zap.Bool("void", ev.Void),
		zap.String("outcome", ev.Outcome),
		zap.Int("pairs", n),
	)
	return n, nil
}

func retryable(err error) bool {
	return err != nil && !errors.Is(err, errBadResult) && !model.IsInvariant(err)
}

// deadLetter grava a mensagem original na DLQ. Sem DLQ configurada a
// mensagem é descartada depois do log.
func (p *Processor) deadLetter(ctx context.Context, key string, value []byte) error {
	if p.DLQ == nil {
		p.Log.Error("no dlq configured, dropping message", zap.String("key", key))
		return nil
	}
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.fail("dlq")
		return fmt.Errorf("dlq write %s: %w", key, err)
	}
	return nil
}

func (p *Processor) fail(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
