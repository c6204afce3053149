//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/events"
)

func TestReplayerRequeuesThenQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	entryID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, entryID, events.TypeEntryLogged)

	failing := &stubProducer{failures: 100, err: errors.New("broker unreachable")}
	dispatcher := NewDispatcher(pool, failing, 10*time.Millisecond, 5, WithRetry(0, time.Millisecond))
	require.NoError(t, dispatcher.processBatch(ctx))

	// A zero base delay falls back to a minute, so use a tiny one.
	replayer := NewReplayer(pool, 1, time.Millisecond, zerolog.Nop())

	replayed, err := replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	var pending bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at IS NULL FROM outbox WHERE event_id = $1`, eventID).Scan(&pending))
	require.True(t, pending)

	// Nothing is due while the event is back in the outbox.
	replayed, err = replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, replayed)

	// The second failure parks the same row again.
	require.NoError(t, dispatcher.processBatch(ctx))
	var (
		rows    int
		retries int
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), MAX(retry_count) FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&rows, &retries))
	require.Equal(t, 1, rows)
	require.Equal(t, 1, retries)

	time.Sleep(20 * time.Millisecond)
	replayed, err = replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, replayed)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq WHERE event_id = $1 AND quarantined_at IS NOT NULL`, eventID).Scan(&reason))
	require.Equal(t, "retry limit reached", reason)
}
