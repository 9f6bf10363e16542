package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	l := New(limit, window)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestTakeRefillsOverTheWindow(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	defer l.Close()

	assert.Equal(t, Decision{Allowed: true, Remaining: 1}, l.Take("a"))
	assert.Equal(t, Decision{Allowed: true, Remaining: 0}, l.Take("a"))
	denied := l.Take("a")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 30*time.Second, denied.RetryAfter)
	assert.True(t, l.Allow("b"), "keys are independent")

	*now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestRetryAfterShrinksWithPartialRefill(t *testing.T) {
	l, now := newTestLimiter(1, 10*time.Second)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	*now = now.Add(4 * time.Second)
	d := l.Take("a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 6*time.Second, d.RetryAfter)
}

func TestIdleKeysAreForgotten(t *testing.T) {
	l, now := newTestLimiter(1, time.Second)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	*now = now.Add(time.Minute)
	l.forgetIdle()
	assert.Empty(t, l.buckets)
}

func TestZeroLimitDenies(t *testing.T) {
	l := New(0, time.Minute)
	defer l.Close()
	d := l.Take("a")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
}
