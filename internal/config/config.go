package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/naoina/toml"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Latest-report store retention.
	StoreMaxHistory    int           // reports kept per location (0 = unlimited)
	StoreMaxAge        time.Duration // max report age (0 = unlimited)
	StoreSweepInterval time.Duration

	// Optional secondary sinks, read from the SINKS_CONFIG file.
	Sinks SinksConfig
}

// SinksConfig is the layout of the optional TOML sinks file.
type SinksConfig struct {
	MQTT   MQTTConfig   `toml:"mqtt"`
	Influx InfluxConfig `toml:"influx"`
}

// MQTTConfig configures the MQTT report publisher.
type MQTTConfig struct {
	BrokerHost  string `toml:"broker_host"`
	BrokerPort  int    `toml:"broker_port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
}

// Enabled reports whether a broker was configured.
func (c MQTTConfig) Enabled() bool { return c.BrokerHost != "" }

// InfluxConfig configures the InfluxDB 1.x point writer.
type InfluxConfig struct {
	Hostname    string `toml:"hostname"`
	Port        int    `toml:"port"`
	Database    string `toml:"database"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Measurement string `toml:"measurement"`
}

// Enabled reports whether an InfluxDB host was configured.
func (c InfluxConfig) Enabled() bool { return c.Hostname != "" }

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	storeMaxHistory, err := parseNonNegativeInt("STORE_MAX_HISTORY", 96)
	if err != nil {
		return nil, err
	}
	storeMaxAge, err := parseNonNegativeDuration("STORE_MAX_AGE", "24h")
	if err != nil {
		return nil, err
	}
	storeSweepInterval, err := parsePositiveDuration("STORE_SWEEP_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}

	sinks, err := LoadSinks(os.Getenv("SINKS_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-air-quality-samples"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "air-quality-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "air-quality-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		StoreMaxHistory:    storeMaxHistory,
		StoreMaxAge:        storeMaxAge,
		StoreSweepInterval: storeSweepInterval,

		Sinks: sinks,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// LoadSinks decodes the TOML sinks file at path and fills in defaults.
// An empty path yields a configuration with every sink disabled.
func LoadSinks(path string) (SinksConfig, error) {
	var sinks SinksConfig
	if path == "" {
		return sinks, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return sinks, fmt.Errorf("invalid SINKS_CONFIG: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewDecoder(f).Decode(&sinks); err != nil {
		return sinks, fmt.Errorf("invalid SINKS_CONFIG: %w", err)
	}

	if sinks.MQTT.Enabled() {
		if sinks.MQTT.BrokerPort == 0 {
			sinks.MQTT.BrokerPort = 1883
		}
		if sinks.MQTT.ClientID == "" {
			sinks.MQTT.ClientID = "air-quality-etl"
		}
		if sinks.MQTT.TopicPrefix == "" {
			sinks.MQTT.TopicPrefix = "air-quality"
		}
	}
	if sinks.Influx.Enabled() {
		if sinks.Influx.Port == 0 {
			sinks.Influx.Port = 8086
		}
		if sinks.Influx.Measurement == "" {
			sinks.Influx.Measurement = "air_quality"
		}
		if sinks.Influx.Database == "" {
			return sinks, errors.New("invalid SINKS_CONFIG: influx.database is required")
		}
	}

	return sinks, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
