package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalDocuments     int64            `json:"total_documents"`
	TotalSimilarity    int64            `json:"total_similarity_requests"`
	TotalExports       int64            `json:"total_exports"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	TotalWords         int64            `json:"total_words"`
	TotalEntities      int64            `json:"total_entities"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	Languages          []LabelCount     `json:"languages"`
	TopKeywords        []LabelCount     `json:"top_keywords"`
	DocumentsBySource  map[string]int64 `json:"documents_by_source"`
	ExportsByFormat    map[string]int64 `json:"exports_by_format"`
	DocumentsPerMinute float64          `json:"documents_per_minute"`
	CapturedAt         time.Time        `json:"captured_at"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Aggregator folds analytics events into running totals. It consumes them
// from Kafka via HandleEvent or in-process through PublishBatch.
type Aggregator struct {
	mu              sync.RWMutex
	totalDocuments  atomic.Int64
	totalSimilarity atomic.Int64
	totalExports    atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	totalWords      atomic.Int64
	totalEntities   atomic.Int64
	latencies       []int64
	languages       map[string]int64
	keywords        map[string]int64
	sources         map[string]int64
	formats         map[string]int64
	startTime       time.Time
	restoredDocs    int64
	now             func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]int64, 0, 1024),
		languages: make(map[string]int64),
		keywords:  make(map[string]int64),
		sources:   make(map[string]int64),
		formats:   make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler that decodes analytics events by their
// type field. Unknown or malformed messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		var event any
		switch env.Type {
		case EventAnalysis:
			event, err = kafka.DecodeJSON[AnalysisEvent](value)
		case EventSimilarity:
			event, err = kafka.DecodeJSON[SimilarityEvent](value)
		case EventExport:
			event, err = kafka.DecodeJSON[ExportEvent](value)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
			return nil
		}
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "type", env.Type, "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// PublishBatch records events directly, letting the collector deliver to
// the aggregator when Kafka is disabled.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		a.Record(e.Value)
	}
	return nil
}

// Record folds a single event into the totals.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case AnalysisEvent:
		a.recordAnalysis(e)
	case SimilarityEvent:
		a.totalSimilarity.Add(1)
	case ExportEvent:
		a.totalExports.Add(1)
		a.mu.Lock()
		a.formats[e.Format]++
		a.mu.Unlock()
	default:
		a.logger.Warn("ignoring unsupported analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) recordAnalysis(e AnalysisEvent) {
	a.totalDocuments.Add(1)
	if e.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	a.totalWords.Add(int64(e.WordCount))
	a.totalEntities.Add(int64(e.EntityCount))

	a.mu.Lock()
	a.latencies = append(a.latencies, e.LatencyMs)
	if len(a.latencies) > maxLatencySamples {
		a.latencies = append(a.latencies[:0], a.latencies[len(a.latencies)-maxLatencySamples:]...)
	}
	if e.Language != "" {
		a.languages[e.Language]++
	}
	for _, kw := range e.Keywords {
		a.keywords[kw]++
	}
	if e.Source != "" {
		a.sources[e.Source]++
	}
	a.mu.Unlock()
}

// Restore seeds the totals from a saved snapshot so counts carry across
// restarts. Latency samples are not restored, and keyword counts only cover
// the snapshot's top keywords. Call it before events start arriving.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.totalDocuments.Add(s.TotalDocuments)
	a.totalSimilarity.Add(s.TotalSimilarity)
	a.totalExports.Add(s.TotalExports)
	a.cacheHits.Add(s.CacheHits)
	a.cacheMisses.Add(s.CacheMisses)
	a.totalWords.Add(s.TotalWords)
	a.totalEntities.Add(s.TotalEntities)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.restoredDocs += s.TotalDocuments
	for _, lc := range s.Languages {
		a.languages[lc.Label] += lc.Count
	}
	for _, lc := range s.TopKeywords {
		a.keywords[lc.Label] += lc.Count
	}
	for k, v := range s.DocumentsBySource {
		a.sources[k] += v
	}
	for k, v := range s.ExportsByFormat {
		a.formats[k] += v
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalDocuments:    a.totalDocuments.Load(),
		TotalSimilarity:   a.totalSimilarity.Load(),
		TotalExports:      a.totalExports.Load(),
		CacheHits:         a.cacheHits.Load(),
		CacheMisses:       a.cacheMisses.Load(),
		TotalWords:        a.totalWords.Load(),
		TotalEntities:     a.totalEntities.Load(),
		DocumentsBySource: copyCounts(a.sources),
		ExportsByFormat:   copyCounts(a.formats),
		CapturedAt:        a.now().UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.Languages = topN(a.languages, len(a.languages))
	stats.TopKeywords = topN(a.keywords, 20)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.DocumentsPerMinute = float64(stats.TotalDocuments-a.restoredDocs) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders counts descending, breaking ties alphabetically.
func topN(counts map[string]int64, n int) []LabelCount {
	result := make([]LabelCount, 0, len(counts))
	for label, count := range counts {
		result = append(result, LabelCount{Label: label, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Label < result[j].Label
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
