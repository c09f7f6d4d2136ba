package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	return conn
}

func TestPublishBroadcastsToClients(t *testing.T) {
	h := New(zap.NewNop(), prometheus.NewRegistry())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/results", "application/json", strings.NewReader(`{"matchId":"m1","outcome":"DRAW"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out publishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Delivered)

	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		var got events.MatchResult
		require.NoError(t, c.ReadJSON(&got))
		assert.Equal(t, "m1", got.MatchID)
		assert.Equal(t, "DRAW", got.Outcome)
		assert.False(t, got.DecidedAt.IsZero())
	}
}

func TestPublishRejectsInvalid(t *testing.T) {
	h := New(zap.NewNop(), prometheus.NewRegistry())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	for _, body := range []string{`{`, `{"outcome":"DRAW"}`, `{"matchId":"m1","outcome":"WHO_KNOWS"}`} {
		resp, err := http.Post(srv.URL+"/results", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	// void dispensa outcome
	resp, err := http.Post(srv.URL+"/results", "application/json", strings.NewReader(`{"matchId":"m1","void":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := New(zap.NewNop(), prometheus.NewRegistry())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
