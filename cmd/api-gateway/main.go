package main

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/api-gateway/proxy"
	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/logger"
	"github.com/radieske/p2p-bet-exchange/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// bets (/api/bets/* -> bet-service) e wallet (/api/wallet/* -> wallet-service)
	h, err := proxy.Router(log, cfg.BetServiceURL, cfg.WalletServiceURL)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	metrics.StartMetricsServer(cfg.MetricsPort, log)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	log.Info("api-gateway listening", zap.String("addr", srv.Addr),
		zap.String("bets", cfg.BetServiceURL), zap.String("wallet", cfg.WalletServiceURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
