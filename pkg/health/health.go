// Package health probes the analyzer's backing services and serves the
// combined result on the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check probes one dependency. It should return promptly once ctx ends.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is satisfied by the postgres, redis and kafka clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck turns a Pinger into a Check. Optional dependencies report
// degraded instead of down when the ping fails.
func PingCheck(p Pinger, optional bool) Check {
	failed := StatusDown
	if optional {
		failed = StatusDegraded
	}
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Static always reports status, e.g. for a dependency switched off in
// config.
func Static(status Status, message string) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: message}
	}
}

type Option func(*Checker)

// WithProbeTimeout bounds each individual check.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) { c.probeTimeout = d }
}

// WithCacheTTL reuses a report for d so frequent probes do not hammer the
// dependencies.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) { c.cacheTTL = d }
}

// WithClock replaces the time source. Uptime is measured from the clock's
// reading at construction.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

type Checker struct {
	mu           sync.Mutex
	checks       map[string]Check
	probeTimeout time.Duration
	cacheTTL     time.Duration
	cached       *Report
	started      time.Time
	now          func() time.Time
	logger       *slog.Logger
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:       make(map[string]Check),
		probeTimeout: 2 * time.Second,
		now:          time.Now,
		logger:       slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Register adds or replaces the check for name and drops any cached report.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.cached = nil
}

// Run probes every dependency in parallel. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	now := c.now()
	if c.cached != nil && c.cacheTTL > 0 && now.Sub(c.cached.CheckedAt) < c.cacheTTL {
		report := *c.cached
		c.mu.Unlock()
		return report
	}
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	results := make(map[string]ComponentHealth, len(checks))
	var resultsMu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
			defer cancel()
			began := time.Now()
			res := check(probeCtx)
			res.Latency = time.Since(began).Round(time.Millisecond).String()
			resultsMu.Lock()
			results[name] = res
			resultsMu.Unlock()
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: results,
		CheckedAt:  now,
		Uptime:     now.Sub(c.started).Round(time.Second).String(),
	}
	for name, res := range results {
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
		if res.Status != StatusUp {
			c.logger.Warn("dependency unhealthy", "name", name, "status", res.Status, "message", res.Message)
		}
	}

	c.mu.Lock()
	c.cached = &report
	c.mu.Unlock()
	return report
}

// LiveHandler reports that the process is serving. It never probes
// dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": c.now().Sub(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers 503 only when a required dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.writeJSON(w, status, report)
	}
}

func (c *Checker) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}
