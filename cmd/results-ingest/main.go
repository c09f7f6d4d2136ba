package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/results-ingest/wsclient"
	"github.com/radieske/p2p-bet-exchange/internal/shared/config"
	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicMatchResults); err != nil {
			log.Warn("ensure kafka topics", zap.Error(err))
		}
	}

	// Kafka writer (topic match_results)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchResults)
	defer writer.Close()

	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "results_ingest_published_total", Help: "resultados publicados"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "results_ingest_errors_total", Help: "erros por fase"}, []string{"phase"})
	prometheus.MustRegister(published, errorsBy)

	client := wsclient.New(cfg.ResultsFeedURL, log, writer)
	client.OnPublished = published.Inc
	client.OnError = func(phase string) { errorsBy.WithLabelValues(phase).Inc() }

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	log.Info("results-ingest started",
		zap.String("feed", cfg.ResultsFeedURL),
		zap.String("publish", cfg.TopicMatchResults),
	)
	client.Start(ctx)

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsSrv.Shutdown(shutdown)
	log.Info("results-ingest stopped")
}
