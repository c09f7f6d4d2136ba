// Package wsclient lê resultados de partidas do feed WebSocket do fornecedor
// e os publica no tópico match_results consumido pelo settlement-worker.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

const DefaultReconnectDelay = 3 * time.Second

// Client consome o feed e republica cada resultado válido no Kafka
type Client struct {
	URL       string
	Log       *zap.Logger
	Publisher kafka.MessageWriter

	ReconnectDelay time.Duration

	OnPublished func()       // métricas
	OnError     func(string) // métricas por fase
}

func New(url string, log *zap.Logger, pub kafka.MessageWriter) *Client {
	return &Client{URL: url, Log: log, Publisher: pub, ReconnectDelay: DefaultReconnectDelay}
}

// Start conecta e reconecta até o contexto ser cancelado
func (c *Client) Start(ctx context.Context) {
	for {
		if err := c.connectAndListen(ctx); err != nil {
			c.Log.Warn("results feed connection closed", zap.Error(err))
			c.fail("connect")
		}
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping results feed client")
			return
		case <-time.After(c.ReconnectDelay):
		}
	}
}

func (c *Client) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to results feed", zap.String("url", c.URL))

	// ReadMessage não observa ctx: fecha a conexão no cancelamento
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.forward(ctx, message); err != nil {
			c.Log.Warn("result not forwarded", zap.Error(err))
		}
	}
}

var errInvalidResult = errors.New("invalid match result")

// forward valida o resultado antes de publicar; chave é o matchId
func (c *Client) forward(ctx context.Context, raw []byte) error {
	var res events.MatchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.fail("decode")
		return err
	}
	if res.MatchID == "" || (!res.Void && !model.Outcome(res.Outcome).Valid()) {
		c.fail("validate")
		return errInvalidResult
	}
	if res.DecidedAt.IsZero() {
		res.DecidedAt = time.Now().UTC()
	}
	if err := kafka.WriteJSON(ctx, c.Publisher, res.MatchID, res); err != nil {
		c.fail("publish")
		return err
	}
	c.Log.Info("match result forwarded", zap.String("matchId", res.MatchID),
		zap.String("outcome", res.Outcome), zap.Bool("void", res.Void))
	if c.OnPublished != nil {
		c.OnPublished()
	}
	return nil
}

func (c *Client) fail(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}
