package outbox

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/events"
)

func TestKafkaProducerReusesWritersPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, WithBatchTimeout(5*time.Millisecond))

	entries := p.writer(events.TopicEntryEvents)
	require.Same(t, entries, p.writer(events.TopicEntryEvents))
	require.NotSame(t, entries, p.writer(events.TopicGoalEvents))

	require.Equal(t, events.TopicEntryEvents, entries.Topic)
	require.Equal(t, 5*time.Millisecond, entries.BatchTimeout)
	require.Equal(t, kafka.RequireAll, entries.RequiredAcks)
	require.IsType(t, &kafka.Hash{}, entries.Balancer)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}
