// Package tracing times the steps of a single analysis. A request or
// consumed message starts a root span, each toolkit step runs in a child,
// and the finished tree is logged as one debug record with per-step
// timings.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	children []*Span
	attrs    []slog.Attr
}

// Start opens a root span and returns a context carrying it.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// Child opens a span under the one in ctx. With no parent it starts a new
// root with an empty trace ID.
func Child(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return Start(ctx, name, "")
	}
	s := &Span{name: name, traceID: parent.traceID, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, s), s
}

// Step runs fn as a child span of the span in ctx.
func Step(ctx context.Context, name string, fn func()) {
	_, s := Child(ctx, name)
	defer s.End()
	fn()
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End marks the span finished. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.mu.Unlock()
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// Duration is the elapsed time so far for an open span.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// Children returns the direct children in the order they started.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Timings flattens the tree below s into slash-joined step paths, e.g.
// "entities" or "entities/orgs".
func (s *Span) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration)
	var walk func(prefix []string, sp *Span)
	walk = func(prefix []string, sp *Span) {
		for _, c := range sp.Children() {
			path := append(append([]string(nil), prefix...), c.name)
			out[strings.Join(path, "/")] = c.Duration()
			walk(path, c)
		}
	}
	walk(nil, s)
	return out
}

// Log emits the span as a single debug record. Nothing is built when debug
// logging is off.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	timings := s.Timings()
	steps := make([]any, 0, len(timings))
	for path, d := range timings {
		steps = append(steps, slog.Int64(path, d.Microseconds()))
	}

	s.mu.Lock()
	attrs := append([]slog.Attr(nil), s.attrs...)
	s.mu.Unlock()

	args := []any{
		"trace_id", s.traceID,
		"span", s.name,
		"duration_us", s.Duration().Microseconds(),
		slog.Group("steps_us", steps...),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.DebugContext(ctx, "trace finished", args...)
}
