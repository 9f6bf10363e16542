// Package config builds the service configuration in three layers: compiled
// defaults, an optional YAML file, then SENTINEL_* environment variables.
// The result is validated before it is handed to the rest of the service.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest   string `yaml:"documentIngest"`
	DocumentAnalyzed string `yaml:"documentAnalyzed"`
	AnalyticsEvents  string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	Namespace string        `yaml:"namespace"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
}

// AnalysisConfig controls the text analysis pipeline: preview and keyword
// sizes, input limits, web page fetching, and related-document scoring.
type AnalysisConfig struct {
	SummaryLength    int           `yaml:"summaryLength"`
	KeywordCount     int           `yaml:"keywordCount"`
	MaxContentLength int           `yaml:"maxContentLength"`
	MaxUploadSize    int64         `yaml:"maxUploadSize"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	MaxFetchSize     int64         `yaml:"maxFetchSize"`
	RelatedMinScore  float64       `yaml:"relatedMinScore"`
	RelatedLimit     int           `yaml:"relatedLimit"`
	RelatedWorkers   int           `yaml:"relatedWorkers"`
	StoreTimeout     time.Duration `yaml:"storeTimeout"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotRetain   int           `yaml:"snapshotRetain"`
	EventBatchSize   int           `yaml:"eventBatchSize"`
	EventFlush       time.Duration `yaml:"eventFlush"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load layers the YAML file at path (skipped when path is empty) and the
// environment over the defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, osLookup); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// decodeFile reads path into cfg. Keys that match no field are an error
// so a misspelt setting does not silently fall back to its default.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the analysis pipeline cannot work with.
func (c *Config) Validate() error {
	var errs []error
	a := c.Analysis
	if a.SummaryLength < 1 {
		errs = append(errs, fmt.Errorf("analysis.summaryLength must be positive, got %d", a.SummaryLength))
	}
	if a.KeywordCount < 1 {
		errs = append(errs, fmt.Errorf("analysis.keywordCount must be positive, got %d", a.KeywordCount))
	}
	if a.MaxContentLength < 1 {
		errs = append(errs, fmt.Errorf("analysis.maxContentLength must be positive, got %d", a.MaxContentLength))
	}
	if a.MaxUploadSize < 1 {
		errs = append(errs, fmt.Errorf("analysis.maxUploadSize must be positive, got %d", a.MaxUploadSize))
	}
	if a.RelatedMinScore < 0 || a.RelatedMinScore > 1 {
		errs = append(errs, fmt.Errorf("analysis.relatedMinScore must be within [0,1], got %v", a.RelatedMinScore))
	}
	if a.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("analysis.fetchTimeout must be positive, got %s", a.FetchTimeout))
	}
	if a.MaxFetchSize < 1 {
		errs = append(errs, fmt.Errorf("analysis.maxFetchSize must be positive, got %d", a.MaxFetchSize))
	}
	if a.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("analysis.snapshotInterval must be positive, got %s", a.SnapshotInterval))
	}
	if a.RelatedWorkers < 1 {
		errs = append(errs, fmt.Errorf("analysis.relatedWorkers must be positive, got %d", a.RelatedWorkers))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       600,
		},
		Postgres: PostgresConfig{
			Enabled:         true,
			Host:            "localhost",
			Port:            5432,
			Database:        "sentinel",
			User:            "sentinel",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "sentinel-analyzer",
			Topics: KafkaTopics{
				DocumentIngest:   "document-ingest",
				DocumentAnalyzed: "document-analyzed",
				AnalyticsEvents:  "analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			PoolSize:  10,
			Namespace: "sentinel",
			CacheTTL:  10 * time.Minute,
		},
		Analysis: AnalysisConfig{
			SummaryLength:    200,
			KeywordCount:     10,
			MaxContentLength: 50000,
			MaxUploadSize:    10 << 20,
			FetchTimeout:     15 * time.Second,
			MaxFetchSize:     5 << 20,
			RelatedMinScore:  0.1,
			RelatedLimit:     20,
			RelatedWorkers:   8,
			StoreTimeout:     5 * time.Second,
			SnapshotInterval: time.Minute,
			SnapshotRetain:   1440,
			EventBatchSize:   100,
			EventFlush:       2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}
