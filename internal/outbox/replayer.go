package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const maxReplayDelay = time.Hour

// Replayer hands dead-lettered events back to the dispatcher and quarantines
// those that keep failing.
type Replayer struct {
	pool       *pgxpool.Pool
	log        zerolog.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewReplayer constructs a Replayer. Non-positive settings fall back to five
// retries and a one minute base delay.
func NewReplayer(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, log zerolog.Logger) *Replayer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &Replayer{pool: pool, log: log, maxRetries: maxRetries, baseDelay: baseDelay}
}

type dlqEntry struct {
	ID         int64
	EventID    int64
	EventType  string
	Topic      string
	RetryCount int
}

// RunOnce processes up to batchSize due dead-letter rows and returns how many
// were handed back to the outbox.
func (r *Replayer) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, event_id, event_type, topic, retry_count
        FROM outbox_dlq
        WHERE replayed_at IS NULL AND quarantined_at IS NULL
          AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY failed_at
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		err := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.RetryCount)
		return e, err
	})
	if err != nil {
		return 0, err
	}

	replayed := 0
	var errs error
	for _, entry := range entries {
		ok, err := r.handle(ctx, entry)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if ok {
			replayed++
		}
	}
	r.updateBacklog(ctx)
	return replayed, errs
}

// handle replays or quarantines one row. It reports whether the event went
// back to the outbox.
func (r *Replayer) handle(ctx context.Context, entry dlqEntry) (_ bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if entry.RetryCount >= r.maxRetries {
		if err = r.quarantine(ctx, tx, entry, "retry limit reached"); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE outbox SET published_at = NULL, claimed_at = NULL WHERE event_id = $1`,
		entry.EventID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		if err = r.quarantine(ctx, tx, entry, "outbox row no longer exists"); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	}

	// next_retry_at only gates the row once the dispatcher parks it again.
	_, err = tx.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                replayed_at = NOW(),
                next_retry_at = NOW() + $1::interval
          WHERE dlq_id = $2`,
		r.delay(entry.RetryCount+1), entry.ID,
	)
	if err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}

	dlqReplayedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
	r.log.Info().Int64("event_id", entry.EventID).Str("event_type", entry.EventType).Int("attempt", entry.RetryCount+1).Msg("dead-lettered event replayed")
	return true, nil
}

func (r *Replayer) quarantine(ctx context.Context, tx pgx.Tx, entry dlqEntry, reason string) error {
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		reason, entry.ID,
	)
	if err != nil {
		return err
	}
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
	r.log.Warn().Int64("event_id", entry.EventID).Str("event_type", entry.EventType).Str("reason", reason).Msg("dead-lettered event quarantined")
	return nil
}

// delay doubles the base delay per attempt, capped at one hour.
func (r *Replayer) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReplayDelay {
			return maxReplayDelay
		}
	}
	return delay
}

func (r *Replayer) updateBacklog(ctx context.Context) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_dlq WHERE replayed_at IS NULL AND quarantined_at IS NULL`,
	).Scan(&count)
	if err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
