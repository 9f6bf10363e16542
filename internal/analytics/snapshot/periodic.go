package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
)

// finalSaveTimeout bounds the save made after shutdown begins.
const finalSaveTimeout = 5 * time.Second

// Saver is the write side used by the periodic loop.
type Saver interface {
	SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error
}

// StatsSource produces the stats to persist.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// RunPeriodic saves a snapshot from src every interval and once more when
// ctx is cancelled. It blocks until then. A tick whose counters match the
// last saved snapshot is skipped, so an idle service does not fill the
// table with duplicates.
func RunPeriodic(ctx context.Context, saver Saver, src StatsSource, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("periodic snapshot started", "interval", interval)

	var last counters
	saved := false
	save := func(ctx context.Context, final bool) {
		stats := src.Stats()
		cur := countersOf(stats)
		if saved && cur == last {
			logger.Debug("analytics unchanged, snapshot skipped")
			return
		}
		if err := saver.SaveSnapshot(ctx, stats); err != nil {
			if final {
				logger.Error("final snapshot failed", "error", err)
			} else {
				logger.Error("periodic snapshot failed", "error", err)
			}
			return
		}
		last, saved = cur, true
	}

	for {
		select {
		case <-ticker.C:
			save(ctx, false)
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
			save(finalCtx, true)
			cancel()
			return
		}
	}
}

// counters is the part of a snapshot that changes whenever an event lands.
type counters struct {
	documents, similarity, exports int64
}

func countersOf(s analytics.AggregatedStats) counters {
	return counters{s.TotalDocuments, s.TotalSimilarity, s.TotalExports}
}
