package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	msg, err := encode(Event{
		Key:     "doc-1",
		Value:   map[string]int{"words": 3},
		Headers: map[string]string{RequestIDHeader: "req-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-1"), msg.Key)
	assert.JSONEq(t, `{"words":3}`, string(msg.Value))
	assert.Equal(t, "req-9", headerValue(msg.Headers, RequestIDHeader))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)

	_, err = DecodeJSON[payload]([]byte(`not json`))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestHeaderValueMissing(t *testing.T) {
	assert.Empty(t, headerValue([]kafka.Header{{Key: "other", Value: []byte("x")}}, RequestIDHeader))
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{messages: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the reader")
	}
	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)
}

func TestConsumerCommitsHandledMessagesWithRequestID(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Key: []byte("a"), Value: []byte(`{}`), Headers: []kafka.Header{{Key: RequestIDHeader, Value: []byte("req-1")}}},
		kafka.Message{Offset: 2, Key: []byte("b"), Value: []byte(`{}`)},
	)
	var ids []string
	c := newConsumer(r, "document-ingest", func(ctx context.Context, key, value []byte) error {
		ids = append(ids, logger.RequestID(ctx))
		return nil
	})

	runUntilDrained(t, c, r)
	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, []string{"req-1", ""}, ids)
}

func TestConsumerRetriesThenSkipsFailingMessage(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 7, Value: []byte(`{}`)})
	calls := 0
	c := newConsumer(r, "document-ingest", func(context.Context, []byte, []byte) error {
		calls++
		return errors.New("store unavailable")
	})
	c.retry = resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	runUntilDrained(t, c, r)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumerRecoversFromFetchErrors(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 3, Value: []byte(`{}`)})
	r.fetchErrs = []error{errors.New("broker restarting")}
	handled := 0
	c := newConsumer(r, "analytics-events", func(context.Context, []byte, []byte) error {
		handled++
		return nil
	})

	runUntilDrained(t, c, r)
	assert.Equal(t, 1, handled)
	assert.Equal(t, []int64{3}, r.committed)
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishBatchIsAllOrNothing(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "analytics-events")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "a", Value: 1},
		{Key: "b", Value: make(chan int)},
	})
	assert.ErrorContains(t, err, `event 1 (key "b")`)
	assert.Empty(t, w.msgs)

	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "c", Value: "x"}}))
	assert.Len(t, w.msgs, 2)
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := newProducer(&captureWriter{err: errors.New("leader not available")}, "document-ingest")
	err := p.Publish(context.Background(), Event{Key: "d", Value: 1})
	assert.ErrorContains(t, err, "publishing 1 events to document-ingest")
	assert.ErrorContains(t, err, "leader not available")
}

func TestEncodeOrdersHeaders(t *testing.T) {
	msg, err := encode(Event{Value: 1, Headers: map[string]string{"z": "1", "a": "2", "m": "3"}})
	require.NoError(t, err)
	var keys []string
	for _, h := range msg.Headers {
		keys = append(keys, h.Key)
	}
	assert.Equal(t, []string{"a", "m", "z"}, keys)
}

func TestBrokerPingerWithoutBrokers(t *testing.T) {
	assert.ErrorContains(t, BrokerPinger(nil).Ping(context.Background()), "no kafka brokers configured")
}
