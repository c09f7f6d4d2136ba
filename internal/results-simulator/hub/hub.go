// Package hub é o feed de resultados de desenvolvimento: clientes se conectam
// em /ws e cada POST /results é repassado a todos eles.
package hub

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type clientConn struct {
	id   string
	conn *websocket.Conn
}

// Hub gerencia os clientes conectados e faz broadcast dos resultados
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*clientConn
	seq     atomic.Int64
	log     *zap.Logger

	connections prometheus.Gauge
	sent        prometheus.Counter
}

func New(log *zap.Logger, reg prometheus.Registerer) *Hub {
	h := &Hub{
		clients: make(map[string]*clientConn),
		log:     log,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "results_feed_ws_connections",
			Help: "Clientes WebSocket conectados",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_feed_ws_messages_sent_total",
			Help: "Total de mensagens WS enviadas",
		}),
	}
	reg.MustRegister(h.connections, h.sent)
	return h
}

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.connections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", c.id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.connections.Dec()
		h.log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

// Clients informa quantos clientes estão conectados
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast envia v a todos os clientes; devolve quantos receberam.
// O lock exclusivo serializa as escritas por conexão.
func (h *Hub) Broadcast(v any) int {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast", zap.Error(err))
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, c := range h.clients {
		_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.conn.Close()
			continue
		}
		h.sent.Inc()
		n++
	}
	return n
}

// Router expõe /ws e POST /results
func (h *Hub) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("POST /results", h.publish)
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := strconv.FormatInt(h.seq.Add(1), 10)
	h.add(&clientConn{id: id, conn: conn})

	// lê e descarta mensagens do cliente; erro de leitura encerra a conexão
	go func() {
		defer func() {
			h.remove(id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type publishResponse struct {
	Delivered int `json:"delivered"`
}

// publish recebe um resultado (ex.: via curl) e o repassa aos clientes
func (h *Hub) publish(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var res events.MatchResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if res.MatchID == "" || (!res.Void && !model.Outcome(res.Outcome).Valid()) {
		http.Error(w, "matchId and a valid outcome (or void) required", http.StatusBadRequest)
		return
	}
	if res.DecidedAt.IsZero() {
		res.DecidedAt = time.Now().UTC()
	}
	n := h.Broadcast(res)
	h.log.Info("result published", zap.String("matchId", res.MatchID), zap.Int("delivered", n))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(publishResponse{Delivered: n})
}
