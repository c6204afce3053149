// Package consumer reads fittrack events from Kafka and dispatches them to handlers.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/events"
)

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is a decoded record published by the outbox dispatcher.
type Message struct {
	Topic       string
	Partition   int
	Offset      int64
	Timestamp   time.Time
	Key         string
	EventType   string
	AggregateID string
	Payload     json.RawMessage
}

// Permanent marks a handler error that retrying cannot fix, such as a payload
// the handler does not understand. The processor commits past such messages.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Processor) {
		p.log = log
	}
}

// WithHandlerRetry bounds how often a failing handler is retried before the
// processor gives up and stops.
func WithHandlerRetry(maxRetries int, initialInterval time.Duration) Option {
	return func(p *Processor) {
		if maxRetries >= 0 {
			p.maxRetries = uint64(maxRetries)
		}
		if initialInterval > 0 {
			p.retryInterval = initialInterval
		}
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader        Reader
	handler       Handler
	log           zerolog.Logger
	maxRetries    uint64
	retryInterval time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:        reader,
		handler:       handler,
		log:           zerolog.Nop(),
		maxRetries:    3,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until the context is cancelled. A message is
// committed only after its handler succeeds. Undecodable messages and
// messages a handler rejects as Permanent are committed so they cannot block
// the partition. A handler that keeps failing after its retries stops Run
// with the offset uncommitted; offsets are cumulative, so moving on would
// skip the failed record.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Error().Err(err).Msg("fetch error")
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.log.Warn().Err(decodeErr).
				Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("decode error")
			recordOutcome(Message{Topic: msg.Topic}, outcomeDecodeError)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Error().Err(commitErr).Msg("commit error after decode failure")
			}
			continue
		}

		rejected, handleErr := p.handle(ctx, event)
		if handleErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Error().Err(handleErr).
				Str("event_type", event.EventType).Str("aggregate_id", event.AggregateID).
				Int("partition", event.Partition).Int64("offset", event.Offset).
				Msg("handler error")
			if !rejected {
				recordOutcome(event, outcomeHandlerError)
				return handleErr
			}
			recordOutcome(event, outcomeRejected)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Error().Err(commitErr).Msg("commit error after rejection")
			}
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.log.Error().Err(commitErr).Msg("commit error")
		} else {
			recordOutcome(event, outcomeProcessed)
		}
	}
}

// handle runs the handler with exponential backoff. rejected reports that the
// handler returned a Permanent error.
func (p *Processor) handle(ctx context.Context, event Message) (rejected bool, err error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.retryInterval
	exp.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := p.handler.Handle(ctx, event)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			rejected = true
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warn().Err(err).
			Str("event_type", event.EventType).Int("attempt", attempt).Dur("retry_in", wait).
			Msg("handler failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, p.maxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return rejected, fmt.Errorf("handle %s after %d attempts: %w", event.EventType, attempt, err)
	}
	return false, nil
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok || len(eventType) == 0 {
		return Message{}, errors.New("missing event_type header")
	}
	if !json.Valid(msg.Value) {
		return Message{}, fmt.Errorf("payload is not valid JSON (%d bytes)", len(msg.Value))
	}
	aggregateID, _ := headerValue(msg, events.HeaderAggregateID)

	return Message{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Key:         string(msg.Key),
		EventType:   string(eventType),
		AggregateID: string(aggregateID),
		Payload:     json.RawMessage(append([]byte(nil), msg.Value...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

// Fanout runs every handler in order and stops at the first error.
type Fanout []Handler

// Handle implements Handler.
func (f Fanout) Handle(ctx context.Context, msg Message) error {
	for _, h := range f {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
