package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/kafka"
)

// Publisher is implemented by kafka.Producer and by Aggregator for
// in-process delivery.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// drainTimeout bounds the final publish after the collector is stopped.
const drainTimeout = 5 * time.Second

// Collector batches analytics events in front of a Publisher. A batch goes
// out when it reaches batchSize or when flushEvery elapses with events
// pending. Track never blocks the request path: when the queue is full, or
// the collector has stopped, the event is counted as dropped.
type Collector struct {
	publisher  Publisher
	queue      chan any
	batchSize  int
	flushEvery time.Duration
	logger     *slog.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	dropped  atomic.Int64
	sent     atomic.Int64
}

func NewCollector(publisher Publisher, bufferSize, batchSize int, flushEvery time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	return &Collector{
		publisher:  publisher,
		queue:      make(chan any, bufferSize),
		batchSize:  batchSize,
		flushEvery: flushEvery,
		logger:     slog.Default().With("component", "analytics-collector"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the batching loop in the background until ctx ends or Close
// is called. Either way the queue is drained before the loop exits. Only
// the first call has any effect, and none after Close.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.queue),
		"batch_size", c.batchSize,
		"flush_every", c.flushEvery,
	)
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	pending := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case ev := <-c.queue:
			pending = append(pending, keyed(ev))
			if len(pending) >= c.batchSize {
				pending = c.publish(ctx, pending)
			}
		case <-ticker.C:
			pending = c.publish(ctx, pending)
		case <-ctx.Done():
			c.drain(pending)
			return
		case <-c.stop:
			c.drain(pending)
			return
		}
	}
}

// Track queues ev for publishing without blocking.
func (c *Collector) Track(ev any) {
	select {
	case <-c.stop:
		c.dropped.Add(1)
		return
	default:
	}
	select {
	case c.queue <- ev:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

// Close stops the loop and waits for the final flush. It is safe to call
// more than once, and Track may still be called afterwards. When Start was
// never called, Close flushes the queued events itself.
func (c *Collector) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.started.CompareAndSwap(false, true) {
			c.drain(nil)
			close(c.done)
		}
	})
	<-c.done
}

// Dropped reports how many events were discarded.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Sent reports how many events the publisher accepted.
func (c *Collector) Sent() int64 { return c.sent.Load() }

// publish hands pending to the publisher and returns an emptied slice for
// reuse. A failed batch is logged and discarded.
func (c *Collector) publish(ctx context.Context, pending []kafka.Event) []kafka.Event {
	if len(pending) == 0 {
		return pending
	}
	if err := c.publisher.PublishBatch(ctx, pending); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(pending), "error", err)
	} else {
		c.sent.Add(int64(len(pending)))
		c.logger.Debug("analytics events flushed", "count", len(pending))
	}
	// The publisher may retain the slice, so start a fresh one.
	return make([]kafka.Event, 0, c.batchSize)
}

// drain empties the queue into a final batch. The caller's context may
// already be done, so the publish gets its own deadline.
func (c *Collector) drain(pending []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-c.queue:
			pending = append(pending, keyed(ev))
		default:
			c.publish(ctx, pending)
			if n := c.dropped.Load(); n > 0 {
				c.logger.Warn("analytics collector stopped", "dropped_total", n, "sent_total", c.sent.Load())
			}
			return
		}
	}
}

// keyed wraps ev with a partition key: analyses by document, exports by
// format, similarity requests together.
func keyed(ev any) kafka.Event {
	key := "analytics"
	switch e := ev.(type) {
	case AnalysisEvent:
		if e.DocumentID != "" {
			key = e.DocumentID
		}
	case ExportEvent:
		key = "export:" + e.Format
	case SimilarityEvent:
		key = string(EventSimilarity)
	}
	return kafka.Event{Key: key, Value: ev}
}
