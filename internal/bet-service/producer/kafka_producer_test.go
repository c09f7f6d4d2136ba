package producer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

type captureWriter struct{ msgs []kafka.Message }

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublishBetSettled_KeyedByBet(t *testing.T) {
	created, matched, settled := &captureWriter{}, &captureWriter{}, &captureWriter{}
	p := NewKafkaPublisher(created, matched, settled)

	err := p.PublishBetSettled(context.Background(), events.BetSettled{
		BetID:        "b1",
		WinnerID:     "alice",
		WinnerPayout: decimal.RequireFromString("570"),
		PlatformFee:  decimal.RequireFromString("30"),
	})
	require.NoError(t, err)
	assert.Empty(t, created.msgs)
	assert.Empty(t, matched.msgs)
	require.Len(t, settled.msgs, 1)
	assert.Equal(t, "b1", string(settled.msgs[0].Key))

	var got events.BetSettled
	require.NoError(t, json.Unmarshal(settled.msgs[0].Value, &got))
	assert.Equal(t, "alice", got.WinnerID)
	assert.True(t, got.WinnerPayout.Equal(decimal.RequireFromString("570")))
	assert.NotZero(t, got.TsUnixMs)
}
