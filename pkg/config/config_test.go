package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Analysis.SummaryLength)
	assert.Equal(t, 10, cfg.Analysis.KeywordCount)
	assert.Equal(t, 50000, cfg.Analysis.MaxContentLength)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
	assert.Equal(t, "host=localhost port=5432 user=sentinel password=localdev dbname=sentinel sslmode=disable", cfg.Postgres.DSN())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 9000
analysis:
  summaryLength: 120
  relatedMinScore: 0.25
redis:
  cacheTTL: 30s
kafka:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("SENTINEL_ANALYSIS_KEYWORD_COUNT", "5")
	t.Setenv("SENTINEL_POSTGRES_HOST", "db.internal")
	t.Setenv("SENTINEL_REDIS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Analysis.SummaryLength)
	assert.Equal(t, 5, cfg.Analysis.KeywordCount)
	assert.InDelta(t, 0.25, cfg.Analysis.RelatedMinScore, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, 50000, cfg.Analysis.MaxContentLength)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Analysis.SummaryLength = 0
	cfg.Analysis.RelatedMinScore = 1.5
	cfg.Kafka.Brokers = nil
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summaryLength")
	assert.Contains(t, err.Error(), "relatedMinScore")
	assert.Contains(t, err.Error(), "kafka.brokers")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  sumaryLength: 50\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sumaryLength")
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SENTINEL_KAFKA_BROKERS":          " a:9092, ,b:9092 ",
		"SENTINEL_REDIS_CACHE_TTL":        "90s",
		"SENTINEL_METRICS_ENABLED":        "false",
		"SENTINEL_REDIS_NAMESPACE":        "",
		"SENTINEL_POSTGRES_HOST":          "",
		"SENTINEL_SERVER_RATE_LIMIT":      "1200",
		"SENTINEL_ANALYSIS_FETCH_TIMEOUT": "3s",
		"SENTINEL_UNRELATED_VARIABLE":     "ignored",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := defaultConfig()
	require.NoError(t, applyEnv(cfg, lookup))

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Redis.Namespace, "an empty namespace is honoured")
	assert.Equal(t, "localhost", cfg.Postgres.Host, "other empty values are skipped")
	assert.Equal(t, 1200, cfg.Server.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.Analysis.FetchTimeout)
}

func TestApplyEnvReportsEveryMalformedValue(t *testing.T) {
	env := map[string]string{
		"SENTINEL_SERVER_PORT":   "eighty",
		"SENTINEL_REDIS_ENABLED": "maybe",
		"SENTINEL_LOGGING_LEVEL": "warn",
	}
	cfg := defaultConfig()
	err := applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENTINEL_SERVER_PORT")
	assert.Contains(t, err.Error(), "SENTINEL_REDIS_ENABLED")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFailsOnBadEnvironment(t *testing.T) {
	t.Setenv("SENTINEL_ANALYSIS_SNAPSHOT_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment overrides")
}
