package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeProcessed    = "processed"
	outcomeHandlerError = "handler_error"
	outcomeRejected     = "rejected"
	outcomeDecodeError  = "decode_error"
)

var (
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Consumed Kafka messages by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	lagSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittrack",
		Subsystem: "consumer",
		Name:      "lag_seconds",
		Help:      "Delay between a record being produced and being handled.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"topic"})

	goalFlipCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "consumer",
		Name:      "goal_status_changes_total",
		Help:      "Number of times a goal flipped between met and not met.",
	}, []string{"goal_type", "met"})
)

func init() {
	prometheus.MustRegister(messagesCounter, lagSeconds, goalFlipCounter)
}

func recordOutcome(msg Message, outcome string) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, outcome).Inc()
	if outcome == outcomeProcessed && !msg.Timestamp.IsZero() {
		lagSeconds.WithLabelValues(msg.Topic).Observe(time.Since(msg.Timestamp).Seconds())
	}
}
