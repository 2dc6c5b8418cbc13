package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"power-quality-processor/analytics"
)

type Config struct {
	HTTP        HTTPConfig           `yaml:"http"`
	Database    DatabaseConfig       `yaml:"database"`
	Redis       RedisConfig          `yaml:"redis"`
	MQTT        MQTTConfig           `yaml:"mqtt"`
	Kafka       KafkaConfig          `yaml:"kafka"`
	Thresholds  analytics.Thresholds `yaml:"thresholds"`
	Ingest      IngestConfig         `yaml:"ingest"`
	Aggregation AggregationConfig    `yaml:"aggregation"`
	LogLevel    string               `yaml:"log_level"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AccessLog      bool          `yaml:"access_log"`
}

// DatabaseConfig selects PostgreSQL. An empty DSN keeps everything in memory.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	SkipMigrations bool   `yaml:"skip_migrations"`
}

// RedisConfig enables the latest-sample cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MQTTConfig struct {
	Broker   string   `yaml:"broker"`
	ClientID string   `yaml:"client_id"`
	Topics   []string `yaml:"topics"`
	// QoS defaults to 1, the level the node publishes at.
	QoS      byte     `yaml:"qos"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type IngestConfig struct {
	// RejectInvalid refuses to store samples that fail validation.
	RejectInvalid bool `yaml:"reject_invalid"`
	Workers       int  `yaml:"workers"`
	QueueSize     int  `yaml:"queue_size"`
}

type AggregationConfig struct {
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	IncludeInvalid   bool          `yaml:"include_invalid"`
	Timezone         string        `yaml:"timezone"`
	RunAt            string        `yaml:"run_at"`
}

// Load reads path (optional), fills defaults, applies environment overrides and validates.
// Fields where zero is a legal value are preset before decoding, so an explicit 0 in
// the file is kept.
func Load(path string) (*Config, error) {
	cfg := Config{
		MQTT:       MQTTConfig{QoS: 1},
		Thresholds: analytics.DefaultThresholds(),
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 30 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 120 * time.Second
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "power-quality-processor"
	}
	if len(c.MQTT.Topics) == 0 {
		c.MQTT.Topics = []string{"scada/measurements"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "power-quality.daily-stats"
	}
	if c.Ingest.QueueSize == 0 {
		c.Ingest.QueueSize = 10_000
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 4
	}
	if c.Aggregation.SamplingInterval == 0 {
		c.Aggregation.SamplingInterval = 6 * time.Second
	}
	if c.Aggregation.Timezone == "" {
		c.Aggregation.Timezone = "Local"
	}
	if c.Aggregation.RunAt == "" {
		c.Aggregation.RunAt = "00:05"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Aggregation.SamplingInterval < time.Second {
		return fmt.Errorf("aggregation.sampling_interval must be at least 1s, got %s", c.Aggregation.SamplingInterval)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("aggregation.timezone: %w", err)
	}
	if _, err := c.RunAt(); err != nil {
		return fmt.Errorf("aggregation.run_at: %w", err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	th := c.Thresholds
	if th.MinSafeFrequency >= th.MaxSafeFrequency {
		return errors.New("thresholds.min_safe_frequency must be below max_safe_frequency")
	}
	return nil
}

// Location resolves aggregation.timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Aggregation.Timezone)
}

// RunAt parses aggregation.run_at ("HH:MM") into an offset from midnight.
func (c *Config) RunAt() (time.Duration, error) {
	t, err := time.Parse("15:04", c.Aggregation.RunAt)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", c.Aggregation.RunAt)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
