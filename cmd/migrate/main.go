package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/db"
	"github.com/radieske/p2p-bet-exchange/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("migrate", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.Migrate(ctx, pg, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("schema up to date")
}
