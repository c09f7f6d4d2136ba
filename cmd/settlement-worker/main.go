package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/escrow"
	kpub "github.com/radieske/p2p-bet-exchange/internal/bet-service/producer"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/settlement"
	"github.com/radieske/p2p-bet-exchange/internal/settlement-worker/consumer"
	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/db"
	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/internal/shared/logger"
	"github.com/radieske/p2p-bet-exchange/internal/shared/metrics"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store/postgres"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/ledger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	st := postgres.NewPostgres(pg)

	if cfg.Env == "local" || cfg.Env == "dev" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers,
			cfg.TopicMatchResults, cfg.TopicMatchResultsDLQ, cfg.TopicBetSettled); err != nil {
			log.Warn("ensure kafka topics", zap.Error(err))
		}
		cancel()
	}

	// Kafka: consome match_results (group settlement-worker), publica bet_settled e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchResults, "settlement-worker")
	defer reader.Close()
	settledW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledW.Close()

	m := metrics.NewWorker(prometheus.DefaultRegisterer)

	wallet := ledger.New(st, log)
	wallet.OnInvariant = m.Invariant

	eng := settlement.New(st, wallet, escrow.New(), log)
	eng.FeePercent = cfg.PlatformFeePercent
	eng.DebitLoser = cfg.SettlementDebitLoser
	eng.Events = kpub.NewKafkaPublisher(nil, nil, settledW)
	eng.OnSettled = m.Settled
	eng.OnInvariant = m.Invariant

	proc := consumer.New(log, reader, st, eng)
	proc.OnConsumed = m.Consumed
	proc.OnPairs = m.Pairs
	proc.OnError = m.Error
	if cfg.TopicMatchResultsDLQ != "" {
		dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchResultsDLQ)
		defer dlq.Close()
		proc.DLQ = dlq
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, st.Ping)

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicMatchResults),
		zap.String("publish", cfg.TopicBetSettled),
		zap.String("fee", cfg.PlatformFeePercent.String()),
		zap.Bool("debitLoser", cfg.SettlementDebitLoser),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsSrv.Shutdown(shutdown)
	log.Info("settlement-worker stopped")
}
