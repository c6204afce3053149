package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/logger"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/persistence/sqlite"
	httptransport "example.com/fittrack/internal/transport/http"
)

type repository interface {
	domain.EntryRepository
	domain.GoalRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("fittrack-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Stack().Err(err).Msg("api exited")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	var repo repository
	switch cfg.StoreDriver {
	case config.DriverMemory:
		repo = memory.NewRepository()
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()
		repo = sqlite.NewRepository(db)
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL, cfg.PostgresMaxWait)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo = postgres.NewRepository(pool)

		if cfg.PublishEvents {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithProducerLogger(log))
			defer producer.Close()
			dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithLogger(log.With().Str("component", "outbox").Logger()),
				outbox.WithRetry(cfg.OutboxMaxRetries, cfg.OutboxRetryDelay),
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				dispatcher.Start(ctx)
			}()
		}
	}
	log.Info().Str("driver", cfg.StoreDriver).Str("week_start", cfg.Weekday().String()).Msg("store ready")

	entries := domain.NewEntryStore(repo)
	goals := domain.NewGoalTracker(repo, repo, domain.WithWeekStart(cfg.Weekday()))
	handler := api.NewHandler(entries, goals, log)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), api.NewRouter(handler, cfg.CORSOrigin))
	metrics := httptransport.NewMetricsServer(cfg.MetricsAddress)

	// Either server failing stops the other one and the dispatcher.
	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{server, metrics} {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := httptransport.Serve(ctx, srv, log); err != nil {
				errCh <- err
				cancel()
			}
		}(srv)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}
