package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct{ msgs []kafka.Message }

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(" a:9092, ,b:9092"))
}

func TestWriteJSON(t *testing.T) {
	w := &captureWriter{}
	require.NoError(t, WriteJSON(context.Background(), w, "bet-1", map[string]string{"betId": "bet-1"}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "bet-1", string(w.msgs[0].Key))
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "bet-1", got["betId"])
}

func TestEnsureTopics_RequiresBrokers(t *testing.T) {
	err := EnsureTopics(context.Background(), " , ", "match_results")
	assert.EqualError(t, err, "kafka brokers not provided")
}
