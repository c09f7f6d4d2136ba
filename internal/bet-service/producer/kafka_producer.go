package producer

import (
	"context"
	"time"

	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de domínio do bet-service.
// Chave da mensagem é o id da aposta original (ordem por par).
type KafkaPublisher struct {
	Created kafka.MessageWriter
	Matched kafka.MessageWriter
	Settled kafka.MessageWriter
}

func NewKafkaPublisher(created, matched, settled kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Created: created, Matched: matched, Settled: settled}
}

func (p *KafkaPublisher) PublishBetCreated(ctx context.Context, e events.BetCreated) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return kafka.WriteJSON(ctx, p.Created, e.BetID, e)
}

func (p *KafkaPublisher) PublishBetMatched(ctx context.Context, e events.BetMatched) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return kafka.WriteJSON(ctx, p.Matched, e.BetID, e)
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return kafka.WriteJSON(ctx, p.Settled, e.BetID, e)
}
