// Package consumer reads ingest events from Kafka, analyses each document,
// stores the report and announces it on the analysed topic.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/tracing"
)

// AnalyzedEvent is published after a report has been stored.
type AnalyzedEvent struct {
	DocumentID  string    `json:"document_id"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language"`
	Keywords    []string  `json:"keywords"`
	WordCount   int       `json:"word_count"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// ReportSaver persists reports.
type ReportSaver interface {
	Save(ctx context.Context, report *analysis.Report) error
}

// EventPublisher is the subset of kafka.Producer used to announce reports.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Tracker receives analytics events.
type Tracker interface {
	Track(event any)
}

// AnalysisConsumer wraps a Kafka consumer to drive the analysis pipeline.
type AnalysisConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an AnalysisConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *AnalysisConsumer {
	return &AnalysisConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "analysis-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ac *AnalysisConsumer) Start(ctx context.Context) error {
	ac.logger.Info("analysis consumer starting")
	return ac.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler for ingest events. Messages
// that cannot be decoded are logged and acknowledged; failures to store the
// report are returned so the consumer retries the message. saver, publisher
// and tracker may be nil.
func HandleMessage(analyzer *analysis.Analyzer, saver ReportSaver, publisher EventPublisher, tracker Tracker) kafka.MessageHandler {
	log := slog.Default().With("component", "analysis-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			log.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.DocumentID == "" {
			log.Warn("ingest event without document id", "key", string(key))
			return nil
		}

		start := time.Now()
		ctx, span := tracing.Start(ctx, "consume", logger.RequestID(ctx))
		span.SetAttr("doc_id", event.DocumentID)
		report := analyzer.Analyze(ctx, analysis.Document{
			ID:          event.DocumentID,
			Title:       event.Title,
			Content:     event.Content,
			ContentType: event.ContentType,
			Source:      analysis.SourceKafka,
		})

		if saver != nil {
			if err := saver.Save(ctx, report); err != nil {
				span.End()
				return fmt.Errorf("storing report for %s: %w", event.DocumentID, err)
			}
		}
		if publisher != nil {
			analyzed := kafka.Event{
				Key: report.DocumentID,
				Value: AnalyzedEvent{
					DocumentID:  report.DocumentID,
					ContentHash: report.ContentHash,
					Language:    string(report.Language),
					Keywords:    report.Keywords,
					WordCount:   report.WordCount,
					AnalyzedAt:  report.AnalyzedAt,
				},
			}
			if id := logger.RequestID(ctx); id != "" {
				analyzed.Headers = map[string]string{kafka.RequestIDHeader: id}
			}
			if err := publisher.Publish(ctx, analyzed); err != nil {
				log.Error("failed to publish analyzed event",
					"doc_id", report.DocumentID,
					"error", err,
				)
			}
		}
		elapsed := time.Since(start)
		if tracker != nil {
			tracker.Track(analytics.AnalysisEvent{
				Type:        analytics.EventAnalysis,
				DocumentID:  report.DocumentID,
				Source:      analysis.SourceKafka,
				Language:    string(report.Language),
				Keywords:    report.Keywords,
				EntityCount: entityCount(report),
				WordCount:   report.WordCount,
				LatencyMs:   elapsed.Milliseconds(),
				Timestamp:   time.Now().UTC(),
				RequestID:   logger.RequestID(ctx),
			})
		}
		span.End()
		span.Log(ctx, log)

		log.Info("document analysed",
			"doc_id", report.DocumentID,
			"language", report.Language,
			"latency_ms", elapsed.Milliseconds(),
		)
		return nil
	}
}

func entityCount(r *analysis.Report) int {
	return len(r.Entities.People) + len(r.Entities.Organizations) + len(r.Entities.Locations)
}
