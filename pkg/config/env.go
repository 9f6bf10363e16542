package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix is prepended to every override name.
const envPrefix = "SENTINEL_"

// binding applies one environment variable to the config. set returns an
// error when the raw value cannot be parsed.
type binding struct {
	name string
	set  func(cfg *Config, raw string) error
}

func str(get func(*Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*get(c) = raw
		return nil
	}
}

func num(get func(*Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*get(c) = n
		return nil
	}
}

func flag(get func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, raw string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*get(c) = b
		return nil
	}
}

func dur(get func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, raw string) error {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*get(c) = d
		return nil
	}
}

func list(get func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*get(c) = out
		return nil
	}
}

var bindings = []binding{
	{"SERVER_PORT", num(func(c *Config) *int { return &c.Server.Port })},
	{"SERVER_RATE_LIMIT", num(func(c *Config) *int { return &c.Server.RateLimit })},
	{"SERVER_REQUEST_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.Server.RequestTimeout })},
	{"SERVER_CORS_ORIGINS", list(func(c *Config) *[]string { return &c.Server.CORSOrigins })},

	{"POSTGRES_ENABLED", flag(func(c *Config) *bool { return &c.Postgres.Enabled })},
	{"POSTGRES_HOST", str(func(c *Config) *string { return &c.Postgres.Host })},
	{"POSTGRES_PORT", num(func(c *Config) *int { return &c.Postgres.Port })},
	{"POSTGRES_DATABASE", str(func(c *Config) *string { return &c.Postgres.Database })},
	{"POSTGRES_USER", str(func(c *Config) *string { return &c.Postgres.User })},
	{"POSTGRES_PASSWORD", str(func(c *Config) *string { return &c.Postgres.Password })},
	{"POSTGRES_SSLMODE", str(func(c *Config) *string { return &c.Postgres.SSLMode })},

	{"KAFKA_ENABLED", flag(func(c *Config) *bool { return &c.Kafka.Enabled })},
	{"KAFKA_BROKERS", list(func(c *Config) *[]string { return &c.Kafka.Brokers })},
	{"KAFKA_CONSUMER_GROUP", str(func(c *Config) *string { return &c.Kafka.ConsumerGroup })},

	{"REDIS_ENABLED", flag(func(c *Config) *bool { return &c.Redis.Enabled })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"REDIS_NAMESPACE", str(func(c *Config) *string { return &c.Redis.Namespace })},
	{"REDIS_CACHE_TTL", dur(func(c *Config) *time.Duration { return &c.Redis.CacheTTL })},

	{"ANALYSIS_SUMMARY_LENGTH", num(func(c *Config) *int { return &c.Analysis.SummaryLength })},
	{"ANALYSIS_KEYWORD_COUNT", num(func(c *Config) *int { return &c.Analysis.KeywordCount })},
	{"ANALYSIS_MAX_CONTENT_LENGTH", num(func(c *Config) *int { return &c.Analysis.MaxContentLength })},
	{"ANALYSIS_FETCH_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.Analysis.FetchTimeout })},
	{"ANALYSIS_RELATED_WORKERS", num(func(c *Config) *int { return &c.Analysis.RelatedWorkers })},
	{"ANALYSIS_SNAPSHOT_INTERVAL", dur(func(c *Config) *time.Duration { return &c.Analysis.SnapshotInterval })},
	{"ANALYSIS_SNAPSHOT_RETAIN", num(func(c *Config) *int { return &c.Analysis.SnapshotRetain })},

	{"LOGGING_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOGGING_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},

	{"METRICS_ENABLED", flag(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"METRICS_PORT", num(func(c *Config) *int { return &c.Metrics.Port })},
}

// applyEnv overlays every SENTINEL_* variable found by lookup onto cfg.
// Empty values are ignored except for the Redis namespace, which may be
// cleared on purpose. All malformed values are reported together.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range bindings {
		name := envPrefix + b.name
		raw, ok := lookup(name)
		if !ok || (raw == "" && b.name != "REDIS_NAMESPACE") {
			continue
		}
		if err := b.set(cfg, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", name, raw, err))
		}
	}
	return errors.Join(errs...)
}

// osLookup is the production lookup for applyEnv.
var osLookup = os.LookupEnv
