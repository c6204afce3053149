package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/logger"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/postgres"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("fittrack-dlqreplay", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, cfg.PostgresMaxWait)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	replayer := outbox.NewReplayer(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, log)

	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := httptransport.Serve(ctx, httptransport.NewMetricsServer(cfg.MetricsAddress), log); err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	log.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq replayer started")
	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dlq replayer shutdown requested")
			<-metricsDone
			return
		case <-ticker.C:
			replayed, err := replayer.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("dlq replay error")
			} else if replayed > 0 {
				log.Info().Int("replayed", replayed).Msg("dlq batch replayed")
			}
		}
	}
}
