package analytics

import "time"

type EventType string

const (
	EventAnalysis   EventType = "analysis"
	EventSimilarity EventType = "similarity"
	EventExport     EventType = "export"
)

// AnalysisEvent is emitted once per analysed document.
type AnalysisEvent struct {
	Type        EventType `json:"type"`
	DocumentID  string    `json:"document_id"`
	Source      string    `json:"source"`
	Language    string    `json:"language"`
	Keywords    []string  `json:"keywords"`
	EntityCount int       `json:"entity_count"`
	WordCount   int       `json:"word_count"`
	CacheHit    bool      `json:"cache_hit"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// SimilarityEvent is emitted for pairwise and related-document scoring.
type SimilarityEvent struct {
	Type       EventType `json:"type"`
	Candidates int       `json:"candidates"`
	Matches    int       `json:"matches"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// ExportEvent is emitted for every rendered export.
type ExportEvent struct {
	Type      EventType `json:"type"`
	Format    string    `json:"format"`
	Documents int       `json:"documents"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type envelope struct {
	Type EventType `json:"type"`
}
