package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []analytics.AggregatedStats
}

func (r *recordingSaver) SaveSnapshot(_ context.Context, stats analytics.AggregatedStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, stats)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestRunPeriodicSavesOnTickAndShutdown(t *testing.T) {
	saver := &recordingSaver{}
	agg := analytics.NewAggregator()
	agg.Record(analytics.AnalysisEvent{Type: analytics.EventAnalysis, Language: "en"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, saver, agg, 20*time.Millisecond, discardLogger())
		close(done)
	}()

	assert.Eventually(t, func() bool { return saver.count() >= 1 }, time.Second, 5*time.Millisecond)
	agg.Record(analytics.ExportEvent{Type: analytics.EventExport, Format: "csv"})
	cancel()
	<-done

	require.GreaterOrEqual(t, saver.count(), 2)
	assert.Equal(t, int64(1), saver.saved[0].TotalDocuments)
	assert.Equal(t, int64(1), saver.saved[saver.count()-1].TotalExports)
}

func TestRunPeriodicSkipsUnchangedStats(t *testing.T) {
	saver := &recordingSaver{}
	agg := analytics.NewAggregator()
	agg.Record(analytics.SimilarityEvent{Type: analytics.EventSimilarity})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, saver, agg, 5*time.Millisecond, discardLogger())
		close(done)
	}()

	assert.Eventually(t, func() bool { return saver.count() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, saver.count(), "idle ticks and the final save add nothing")
}

type failingSaver struct{ calls int }

func (f *failingSaver) SaveSnapshot(context.Context, analytics.AggregatedStats) error {
	f.calls++
	return errors.New("db down")
}

func TestRunPeriodicAttemptsFinalSave(t *testing.T) {
	saver := &failingSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context still gets the final save attempt.
	RunPeriodic(ctx, saver, analytics.NewAggregator(), time.Hour, discardLogger())
	assert.Equal(t, 1, saver.calls)
}

func TestPruneQueryKeepsNewest(t *testing.T) {
	assert.Contains(t, pruneQuery, "ORDER BY captured_at DESC, id DESC OFFSET $1")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range Schema {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
}
