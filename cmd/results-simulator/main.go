package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/results-simulator/hub"
	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/logger"
	"github.com/radieske/p2p-bet-exchange/internal/shared/metrics"
)

// Feed de resultados para desenvolvimento local:
//
//	curl -XPOST localhost:8090/results -d '{"matchId":"MATCH_001","outcome":"HOME_WIN"}'
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	h := hub.New(log, prometheus.DefaultRegisterer)
	metrics.StartMetricsServer(cfg.MetricsPort, log)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: h.Router(), ReadHeaderTimeout: 5 * time.Second}
	log.Info("results simulator running", zap.String("addr", srv.Addr), zap.String("paths", "/ws,/results"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("public server error", zap.Error(err))
	}
}
