package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(pingFunc(func(context.Context) error { return nil }), false))
	c.Register("redis", PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }), true))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["postgres"].Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)

	c.Register("kafka", Static(StatusDown, "no brokers"))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", Static(StatusDegraded, "disabled"))

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("db", Static(StatusDown, ""))
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunReusesReportWithinCacheTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewChecker(WithCacheTTL(5*time.Second), WithClock(func() time.Time { return now }))

	var pings atomic.Int32
	c.Register("postgres", PingCheck(pingFunc(func(context.Context) error {
		pings.Add(1)
		return nil
	}), false))

	c.Run(context.Background())
	now = now.Add(2 * time.Second)
	c.Run(context.Background())
	assert.EqualValues(t, 1, pings.Load())

	now = now.Add(4 * time.Second)
	report := c.Run(context.Background())
	assert.EqualValues(t, 2, pings.Load())
	assert.Equal(t, "6s", report.Uptime)
}

func TestRunBoundsSlowProbes(t *testing.T) {
	c := NewChecker(WithProbeTimeout(20 * time.Millisecond))
	c.Register("kafka", PingCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), false))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["kafka"].Message)
}

func TestLiveHandlerIgnoresDependencies(t *testing.T) {
	c := NewChecker()
	c.Register("db", Static(StatusDown, "unreachable"))

	rec := httptest.NewRecorder()
	c.LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

type brokenWriter struct{ header http.Header }

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHandlersLogFailedWrites(t *testing.T) {
	var logs bytes.Buffer
	c := NewChecker()
	c.logger = slog.New(slog.NewTextHandler(&logs, nil))

	c.ReadyHandler().ServeHTTP(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Contains(t, logs.String(), "failed to write health response")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestWithClockSetsUptimeOrigin(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewChecker(WithClock(func() time.Time { return now }))
	now = now.Add(90 * time.Second)

	rec := httptest.NewRecorder()
	c.LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Contains(t, rec.Body.String(), `"uptime":"1m30s"`)
}
