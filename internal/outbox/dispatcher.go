// Package outbox delivers events recorded by the Postgres repository to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	dlq              *DLQWriter
	log              zerolog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetries       uint64
	retryInterval    time.Duration
	shutdownComplete chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithRetry bounds how often a failing Kafka write is retried before the
// batch is parked in the dead-letter table.
func WithRetry(maxRetries int, initialInterval time.Duration) Option {
	return func(d *Dispatcher) {
		if maxRetries >= 0 {
			d.maxRetries = uint64(maxRetries)
		}
		if initialInterval > 0 {
			d.retryInterval = initialInterval
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		dlq:              NewDLQWriter(pool),
		log:              zerolog.Nop(),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		maxRetries:       3,
		retryInterval:    200 * time.Millisecond,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Msg("outbox dispatcher error")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.log.Warn().Err(err).Int("count", len(messages)).Msg("outbox delivery failed, moving batch to DLQ")
		failedCounter.Add(float64(len(messages)))
		if dlqErr := d.moveToDLQ(ctx, messages, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.markPublished(ctx, messages)
	}

	deliveredCounter.Add(float64(len(messages)))
	d.log.Debug().Int("count", len(messages)).Msg("outbox batch delivered")
	return d.markPublished(ctx, messages)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) (_ []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// deliver writes every message, retrying each topic write with exponential
// backoff. Any unroutable event fails the whole batch.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches, order, err := buildBatches(messages)
	if err != nil {
		return err
	}

	for _, topic := range order {
		records := batches[topic]
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = d.retryInterval
		exp.MaxElapsedTime = 0

		attempt := 0
		op := func() error {
			if attempt > 0 {
				retryCounter.Inc()
			}
			attempt++
			return d.producer.WriteMessages(ctx, topic, records...)
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(exp, d.maxRetries), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			return fmt.Errorf("write %s after %d attempts: %w", topic, attempt, err)
		}
	}
	return nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if err := d.dlq.Write(ctx, msg, entryReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

// Message represents a row fetched from the outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
}

// Record converts the row into a Kafka message. Consumers route on the
// event_type header.
func (m Message) Record() kafka.Message {
	return kafka.Message{
		Key:   []byte(m.PartitionKey),
		Value: []byte(m.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(m.EventType)},
			{Key: events.HeaderAggregateID, Value: []byte(m.AggregateID)},
		},
	}
}

// buildBatches groups records by topic, keeping first-seen topic order so
// delivery is deterministic.
func buildBatches(messages []Message) (map[string][]kafka.Message, []string, error) {
	batches := make(map[string][]kafka.Message)
	var order []string
	for _, msg := range messages {
		topic, ok := events.TopicFor(msg.EventType)
		if !ok {
			return nil, nil, fmt.Errorf("no topic for event_type=%s", msg.EventType)
		}
		if msg.Topic != "" && msg.Topic != topic {
			return nil, nil, fmt.Errorf("event_type=%s recorded for topic %s, expected %s", msg.EventType, msg.Topic, topic)
		}
		if _, seen := batches[topic]; !seen {
			order = append(order, topic)
		}
		batches[topic] = append(batches[topic], msg.Record())
	}
	return batches, order, nil
}
