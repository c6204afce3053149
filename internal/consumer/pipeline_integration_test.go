//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/postgres"
)

// Entries written through the postgres repository travel through the outbox
// and Kafka and land in the event log.
func TestOutboxToEventLogPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fittrack"),
		postgrescontainer.WithUsername("fittrack"),
		postgrescontainer.WithPassword("fittrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.Connect(ctx, connStr, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	kafkaC, err := kafkacontainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicEntryEvents,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	repo := postgres.NewRepository(pool)
	store := domain.NewEntryStore(repo)
	entry, err := store.Add(ctx, domain.NewEntry{
		Date:     time.Now().UTC(),
		Activity: &domain.Activity{Name: "Tempo run", Type: domain.ActivityRunning, DurationMin: 40, Intensity: domain.IntensityHigh},
	})
	require.NoError(t, err)

	producer := outbox.NewKafkaProducer(brokers)
	t.Cleanup(func() { _ = producer.Close() })
	dispatcher := outbox.NewDispatcher(pool, producer, 50*time.Millisecond, 10)

	pipelineCtx, stop := context.WithCancel(ctx)
	defer stop()
	go dispatcher.Start(pipelineCtx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "fittrack-integration",
		Topic:       events.TopicEntryEvents,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	tracker := domain.NewGoalTracker(repo, repo)
	handlers := Fanout{NewGoalProgressHandler(tracker, zerolog.Nop()), NewEventLogHandler(pool)}
	go func() {
		_ = NewProcessor(reader, handlers).Run(pipelineCtx)
	}()

	require.Eventually(t, func() bool {
		var count int
		err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_log WHERE aggregate_id = $1 AND event_type = $2`,
			entry.ID, events.TypeEntryLogged,
		).Scan(&count)
		return err == nil && count == 1
	}, 60*time.Second, 500*time.Millisecond)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	stop()
	dispatcher.Wait()
}
