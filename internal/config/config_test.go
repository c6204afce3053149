package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, "fitness_tracker.db", cfg.SQLitePath)
	require.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	require.Equal(t, []string{"fittrack_entry_events", "fittrack_goal_events"}, cfg.ConsumerTopics)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
	require.Equal(t, 5, cfg.ConsumerMaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.ConsumerRetryDelay)
	require.Equal(t, time.Monday, cfg.Weekday())
	require.False(t, cfg.PublishEvents)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FITTRACK_STORE_DRIVER", "postgres")
	t.Setenv("FITTRACK_PUBLISH_EVENTS", "true")
	t.Setenv("FITTRACK_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FITTRACK_WEEK_START", "Sun")
	t.Setenv("FITTRACK_OUTBOX_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.True(t, cfg.PublishEvents)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, time.Sunday, cfg.Weekday())
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":        {"FITTRACK_STORE_DRIVER": "mongo"},
		"events without outbox": {"FITTRACK_PUBLISH_EVENTS": "true"},
		"bad week start":        {"FITTRACK_WEEK_START": "someday"},
		"non-positive batch":    {"FITTRACK_OUTBOX_BATCH_SIZE": "0"},
		"malformed duration":    {"FITTRACK_OUTBOX_POLL_INTERVAL": "soon"},
		"empty sqlite path":     {"FITTRACK_SQLITE_PATH": " "},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" Saturday ")
	require.NoError(t, err)
	require.Equal(t, time.Saturday, day)

	day, err = ParseWeekday("wed")
	require.NoError(t, err)
	require.Equal(t, time.Wednesday, day)
}

func TestLoadCLI(t *testing.T) {
	cli, err := LoadCLI()
	require.NoError(t, err)
	require.Equal(t, CLI{SQLitePath: "fitness_tracker.db", WeekStart: "monday"}, cli)

	t.Setenv("FITTRACK_SQLITE_PATH", "/var/lib/fittrack/fit.db")
	t.Setenv("FITTRACK_WEEK_START", "sun")
	cli, err = LoadCLI()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/fittrack/fit.db", cli.SQLitePath)
	require.Equal(t, "sun", cli.WeekStart)

	t.Setenv("FITTRACK_WEEK_START", "someday")
	_, err = LoadCLI()
	require.Error(t, err)
}
