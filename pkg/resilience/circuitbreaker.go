// Package resilience wraps calls to the analyzer's external dependencies
// with a circuit breaker, retry policies and deadlines.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
)

// ErrOpen is returned while a breaker rejects calls. It wraps
// apperrors.ErrUnavailable.
var ErrOpen = fmt.Errorf("circuit open: %w", apperrors.ErrUnavailable)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BreakerConfig tunes a Breaker. Zero values take defaults: 5 failures,
// 30s cool-down, 1 half-open probe.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenProbes   int
	// IsSuccessful classifies results. Nil treats only a nil error as
	// success; a cache backend can also accept its "not found" error.
	IsSuccessful func(err error) bool
	// OnStateChange runs after a transition, outside the breaker's lock.
	OnStateChange func(name string, from, to State)
}

// Counts is a snapshot of breaker bookkeeping.
type Counts struct {
	Requests            int64
	Rejections          int64
	ConsecutiveFailures int
}

// Breaker stops calling a failing dependency for a cool-down period after
// FailureThreshold consecutive failures, then lets HalfOpenProbes calls
// through to test recovery.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	openedAt time.Time
	inFlight int
	counts   Counts
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool { return err == nil }
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute calls fn when the breaker admits it and records the outcome.
// Rejected calls return an error wrapping ErrOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	done(err)
	return err
}

// Allow admits one call. The caller must report the call's error through
// done exactly once.
func (b *Breaker) Allow() (done func(err error), err error) {
	b.mu.Lock()
	from := b.state
	b.counts.Requests++
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			b.counts.Rejections++
			b.mu.Unlock()
			return nil, fmt.Errorf("%s: %w (retry in %v)", b.name, ErrOpen, wait.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.inFlight = 0
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenProbes {
			b.counts.Rejections++
			b.mu.Unlock()
			return nil, fmt.Errorf("%s: %w (probe in progress)", b.name, ErrOpen)
		}
	}
	if b.state == StateHalfOpen {
		b.inFlight++
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(err) })
	}, nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	from := b.state
	if b.cfg.IsSuccessful(err) {
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.inFlight = 0
		}
	} else {
		b.counts.ConsecutiveFailures++
		if b.state == StateHalfOpen || b.counts.ConsecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.inFlight = 0
		}
	}
	to := b.state
	failures := b.counts.ConsecutiveFailures
	b.mu.Unlock()

	if from != to && to == StateOpen {
		b.logger.Warn("circuit opened", "consecutive_failures", failures, "cooldown", b.cfg.Cooldown)
	}
	b.notify(from, to)
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.inFlight = 0
	b.counts.ConsecutiveFailures = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	b.logger.Info("circuit state changed", "from", from, "to", to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// IsOpen reports whether err came from a rejecting breaker.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
