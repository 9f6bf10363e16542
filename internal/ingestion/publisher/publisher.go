// Package publisher queues validated documents for asynchronous analysis by
// publishing ingest events to Kafka.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/google/uuid"
)

// StatusQueued is reported for documents accepted for asynchronous analysis.
const StatusQueued = "QUEUED"

// EventPublisher is the subset of kafka.Producer used here.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns ingest requests into Kafka events.
type Publisher struct {
	producer EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Publisher writing through producer.
func New(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest assigns a document ID when none is given and publishes the event
// keyed by document ID so all versions of a document land on one partition.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	event := ingestion.IngestEvent{
		DocumentID:  docID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		SourceURL:   req.SourceURL,
		Tags:        req.Tags,
		ContentHash: ingestion.ContentHash(req.Content),
		IngestedAt:  p.now().UTC(),
	}
	msg := kafka.Event{Key: docID, Value: event}
	if id := logger.RequestID(ctx); id != "" {
		msg.Headers = map[string]string{kafka.RequestIDHeader: id}
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		p.logger.Error("failed to queue document",
			"doc_id", docID,
			"error", err,
		)
		return nil, fmt.Errorf("queueing document %s: %w", docID, err)
	}
	return &ingestion.IngestResponse{DocumentID: docID, Status: StatusQueued}, nil
}
