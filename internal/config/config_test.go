package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:8000/api", cfg.Backend.URL)
	assert.Equal(t, TransportWebSocket, cfg.Stream.Transport)
	assert.Equal(t, "ws://localhost:8000/ws", cfg.Stream.URL)
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "pizza_orders", cfg.Redis.Channel)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.ChangeFeed)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.Interval)
	assert.True(t, cfg.Console.Enabled)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"LOG_LEVEL":               "debug",
		"STREAM_TRANSPORT":        "kafka",
		"STREAM_RECONNECT_DELAY":  "500ms",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
		"KAFKA_ORDER_TOPIC":       "orders",
		"KAFKA_CHANGE_FEED":       "true",
		"DASHBOARD_INTERVAL":      "1s",
		"DASHBOARD_RESYNC_ORDERS": "true",
		"CONSOLE_ENABLED":         "false",
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, TransportKafka, cfg.Stream.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.ReconnectDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders", cfg.Kafka.OrderTopic)
	assert.True(t, cfg.Kafka.ChangeFeed)
	assert.Equal(t, time.Second, cfg.Dashboard.Interval)
	assert.True(t, cfg.Dashboard.ResyncOrders)
	assert.False(t, cfg.Console.Enabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{name: "unknown transport", environ: map[string]string{"STREAM_TRANSPORT": "carrier-pigeon"}},
		{name: "zero reconnect delay", environ: map[string]string{"STREAM_RECONNECT_DELAY": "0s"}},
		{name: "negative poll interval", environ: map[string]string{"DASHBOARD_INTERVAL": "-1s"}},
		{name: "kafka without topic", environ: map[string]string{"STREAM_TRANSPORT": "kafka", "KAFKA_ORDER_TOPIC": " "}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.environ)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(map[string]string{"STREAM_RECONNECT_DELAY": "soon"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STREAM_TRANSPORT=redis\nREDIS_ADDR=cache:6379\n"), 0o600))
	t.Setenv("STREAM_TRANSPORT", "")
	t.Setenv("REDIS_ADDR", "")
	require.NoError(t, os.Unsetenv("STREAM_TRANSPORT"))
	require.NoError(t, os.Unsetenv("REDIS_ADDR"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportRedis, cfg.Stream.Transport)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}
