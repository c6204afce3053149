package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/logger"
	"example.com/fittrack/internal/persistence/postgres"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("fittrack-consumer", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, cfg.PostgresMaxWait)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	repo := postgres.NewRepository(pool)
	tracker := domain.NewGoalTracker(repo, repo, domain.WithWeekStart(cfg.Weekday()))

	handlers := consumer.Fanout{consumer.NewGoalProgressHandler(tracker, log.With().Str("component", "progress").Logger())}
	if cfg.ConsumerLogToDB {
		handlers = append(handlers, consumer.NewEventLogHandler(pool))
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httptransport.Serve(ctx, metricsSrv, log); err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLog := log.With().Str("topic", topic).Logger()
		proc := consumer.NewProcessor(reader, handlers,
			consumer.WithLogger(topicLog),
			consumer.WithHandlerRetry(cfg.ConsumerMaxRetries, cfg.ConsumerRetryDelay),
		)

		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			topicLog.Info().Str("group", cfg.ConsumerGroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// The uncommitted record is redelivered after a restart.
				topicLog.Error().Err(err).Msg("consumer stopped")
				failed.Store(true)
				cancel()
			}
		}(reader)
	}

	<-ctx.Done()
	log.Info().Msg("consumer shutdown requested")
	wg.Wait()
	if failed.Load() {
		pool.Close()
		os.Exit(1)
	}
}
