package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	betcache "github.com/radieske/p2p-bet-exchange/internal/bet-service/cache"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/escrow"
	bhttp "github.com/radieske/p2p-bet-exchange/internal/bet-service/http"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/matching"
	kpub "github.com/radieske/p2p-bet-exchange/internal/bet-service/producer"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/service"
	"github.com/radieske/p2p-bet-exchange/internal/shared/cache"
	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/db"
	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/internal/shared/lock"
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

	// Postgres: apostas, escrow e carteiras na mesma transação
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()
	st := postgres.NewPostgres(pg)

	// Redis: lock distribuído bet:{id} e cache do feed
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()
	locker := lock.NewRedis(rdb)

	// Kafka writers (bet_created, bet_matched)
	if cfg.Env == "local" || cfg.Env == "dev" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicBetCreated, cfg.TopicBetMatched); err != nil {
			log.Warn("ensure kafka topics", zap.Error(err))
		}
		cancel()
	}
	createdW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetCreated)
	defer createdW.Close()
	matchedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetMatched)
	defer matchedW.Close()
	publ := kpub.NewKafkaPublisher(createdW, matchedW, nil)

	m := metrics.NewBet(prometheus.DefaultRegisterer)

	wallet := ledger.New(st, log)
	wallet.OnInvariant = m.Invariant

	svc := service.New(st, locker, log)
	svc.MinStake = cfg.MinStake
	svc.FrontendURL = cfg.FrontendURL
	svc.LockTTL = cfg.MatchLockTTL
	svc.Events = publ
	svc.OnCreated = m.Created
	svc.OnExpired = m.Expired

	eng := matching.New(st, locker, wallet, escrow.New(), log)
	eng.LockTTL = cfg.MatchLockTTL
	eng.Events = publ
	eng.OnMatched = m.Matched
	eng.OnRejected = m.Rejected
	eng.OnInvariant = m.Invariant

	api := bhttp.NewServer(log, svc, eng, betcache.New(rdb))
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		st.Ping,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("bet-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// varredura de apostas pendentes cuja partida já começou
		if err := svc.RunExpirySweeper(gctx, cfg.ExpirySweepInterval); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdown)
		return apiSrv.Shutdown(shutdown)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("bet-service stopped with error", zap.Error(err))
	}
	log.Info("bet-service stopped")
}
