// Package ratelimit is an in-memory token bucket per client key, used to
// cap how many documents one caller can push through the analyzer API.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed bool
	// Remaining is the whole tokens left after this request.
	Remaining int
	// RetryAfter is how long until a token is available when denied.
	RetryAfter time.Duration
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// Limiter refills each key's bucket at limit tokens per window, up to a
// burst of limit.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New starts a limiter and a janitor that forgets keys idle for two
// windows. Close stops the janitor.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor(min(window, 5*time.Minute))
	return l
}

// Limit is the configured burst size.
func (l *Limiter) Limit() int { return l.limit }

// Take spends one token from key's bucket if there is one.
func (l *Limiter) Take(key string) Decision {
	if l.limit <= 0 {
		return Decision{RetryAfter: l.window}
	}
	rate := float64(l.limit) / l.window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit), seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(float64(l.limit), b.tokens+now.Sub(b.seen).Seconds()*rate)
	b.seen = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
		return Decision{RetryAfter: wait.Round(time.Millisecond)}
	}
	b.tokens--
	return Decision{Allowed: true, Remaining: int(b.tokens)}
}

// Allow reports whether key may proceed, spending a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.Take(key).Allowed
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) forgetIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) janitor(every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.forgetIdle()
		case <-l.stop:
			return
		}
	}
}
