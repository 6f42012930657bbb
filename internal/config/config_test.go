package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "raw-air-quality-samples", cfg.KafkaSourceTopic)
	assert.Equal(t, "air-quality-reports", cfg.KafkaSinkTopic)
	assert.Equal(t, "air-quality-etl", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, 96, cfg.StoreMaxHistory)
	assert.Equal(t, 24*time.Hour, cfg.StoreMaxAge)
	assert.Equal(t, time.Minute, cfg.StoreSweepInterval)
	assert.False(t, cfg.Sinks.MQTT.Enabled())
	assert.False(t, cfg.Sinks.Influx.Enabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("STORE_MAX_HISTORY", "0")
	t.Setenv("STORE_MAX_AGE", "6h")
	t.Setenv("STORE_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, 0, cfg.StoreMaxHistory)
	assert.Equal(t, 6*time.Hour, cfg.StoreMaxAge)
	assert.Equal(t, 30*time.Second, cfg.StoreSweepInterval)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_BatchSizeTooLarge(t *testing.T) {
	t.Setenv("BATCH_SIZE", "9999")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidMapboxTimeout(t *testing.T) {
	t.Setenv("MAPBOX_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TIMEOUT")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_InvalidStoreSettings(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"STORE_MAX_HISTORY", "-1"},
		{"STORE_MAX_HISTORY", "many"},
		{"STORE_MAX_AGE", "-1h"},
		{"STORE_SWEEP_INTERVAL", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func writeSinks(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sinks.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_SinksConfig(t *testing.T) {
	t.Setenv("SINKS_CONFIG", writeSinks(t, `
[mqtt]
broker_host = "mqtt.local"
username = "etl"

[influx]
hostname = "influx.local"
database = "air"
`))

	cfg, err := Load()
	require.NoError(t, err)

	mqtt := cfg.Sinks.MQTT
	assert.True(t, mqtt.Enabled())
	assert.Equal(t, "mqtt.local", mqtt.BrokerHost)
	assert.Equal(t, 1883, mqtt.BrokerPort)
	assert.Equal(t, "etl", mqtt.Username)
	assert.Equal(t, "air-quality-etl", mqtt.ClientID)
	assert.Equal(t, "air-quality", mqtt.TopicPrefix)

	influx := cfg.Sinks.Influx
	assert.True(t, influx.Enabled())
	assert.Equal(t, 8086, influx.Port)
	assert.Equal(t, "air", influx.Database)
	assert.Equal(t, "air_quality", influx.Measurement)
}

func TestLoadSinks_Empty(t *testing.T) {
	sinks, err := LoadSinks("")
	require.NoError(t, err)
	assert.Equal(t, SinksConfig{}, sinks)
}

func TestLoadSinks_MissingFile(t *testing.T) {
	_, err := LoadSinks(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SINKS_CONFIG")
}

func TestLoadSinks_Malformed(t *testing.T) {
	_, err := LoadSinks(writeSinks(t, "[mqtt\nbroker_host ="))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SINKS_CONFIG")
}

func TestLoadSinks_InfluxRequiresDatabase(t *testing.T) {
	_, err := LoadSinks(writeSinks(t, "[influx]\nhostname = \"influx.local\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx.database")
}
