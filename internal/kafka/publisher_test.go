package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type recordingProducer struct {
	mu         sync.Mutex
	msgs       []sentMessage
	closed     bool
	afterClose int
	fail       error
}

func (p *recordingProducer) SendMessage(_ context.Context, topic string, key []byte, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.afterClose++
		return errors.New("producer closed")
	}
	if p.fail != nil {
		return p.fail
	}
	p.msgs = append(p.msgs, sentMessage{topic: topic, key: string(key), value: value})
	return nil
}

func (p *recordingProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingProducer) sent() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.msgs...)
}

func event(id string, status lifecycle.Status, ts time.Time) model.OrderEvent {
	return model.OrderEvent{
		EventType: lifecycle.EventType(status),
		Order:     model.Order{ID: id, Status: status},
		Timestamp: model.NewTime(ts),
	}
}

func TestPublisher_PublishesAcceptedChanges(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer, PublisherConfig{Topic: "changes"}, nil)

	c := cache.NewOrderCache(nil, nil)
	unsubscribe := c.Subscribe(pub.Observe)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub.Start(ctx)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, ev := range []model.OrderEvent{
		event("o1", lifecycle.Ready, t0),
		event("o1", lifecycle.Ready, t0),
		event("o1", lifecycle.Preparing, t0.Add(-time.Minute)),
		event("o1", lifecycle.Dispatched, t0.Add(time.Minute)),
	} {
		_, err := c.ApplyEvent(ev)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(producer.sent()) == 2 }, time.Second, 5*time.Millisecond)
	pub.Shutdown()

	msgs := producer.sent()
	assert.Equal(t, "changes", msgs[0].topic)
	assert.Equal(t, "o1", msgs[0].key)

	var rec ChangeRecord
	require.NoError(t, json.Unmarshal(msgs[1].value, &rec))
	assert.Equal(t, cache.Updated, rec.Outcome)
	assert.Equal(t, cache.SourceStream, rec.Source)
	assert.Equal(t, "order.dispatched", rec.EventType)
	assert.Equal(t, lifecycle.Dispatched, rec.Order.Status)
	assert.True(t, producer.closed)
}

func TestPublisher_ShutdownDrainsQueue(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer, PublisherConfig{}, nil)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		pub.Observe(cache.Change{Outcome: cache.Inserted, Source: cache.SourceSnapshot, Event: event(id, lifecycle.Created, t0), Order: model.Order{ID: id}})
	}

	pub.Start(context.Background())
	pub.Shutdown()

	var keys []string
	for _, m := range producer.sent() {
		keys = append(keys, m.key)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
	assert.Zero(t, producer.afterClose)

	pub.Observe(cache.Change{Outcome: cache.Inserted, Order: model.Order{ID: "late"}})
	assert.Len(t, producer.sent(), 3, "changes after shutdown are ignored")
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer, PublisherConfig{BufferSize: 1, ShutdownTimeout: time.Second}, nil)

	pub.Observe(cache.Change{Outcome: cache.Inserted, Order: model.Order{ID: "a"}})
	pub.Observe(cache.Change{Outcome: cache.Inserted, Order: model.Order{ID: "b"}})
	pub.Observe(cache.Change{Outcome: cache.Stale, Order: model.Order{ID: "c"}})

	assert.Len(t, pub.queue, 1)
}

func TestPublisher_SendFailureIsNotFatal(t *testing.T) {
	producer := &recordingProducer{fail: errors.New("broker down")}
	pub := NewPublisher(producer, PublisherConfig{}, nil)

	pub.Observe(cache.Change{Outcome: cache.Inserted, Order: model.Order{ID: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	pub.Start(ctx)
	cancel()
	pub.Shutdown()

	assert.Empty(t, producer.sent())
	assert.True(t, producer.closed)
	assert.Zero(t, producer.afterClose)
}

func TestPublisher_StartAfterShutdown(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer, PublisherConfig{ShutdownTimeout: time.Second}, nil)

	pub.Observe(cache.Change{Outcome: cache.Inserted, Order: model.Order{ID: "a"}})
	pub.Shutdown()
	pub.Start(context.Background())
	pub.Shutdown()

	assert.True(t, producer.closed)
	assert.Empty(t, producer.sent())
	assert.Zero(t, producer.afterClose, "nothing is sent to a closed producer")
}

func TestConsoleProducer(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProducer(&buf, nil)

	require.NoError(t, p.SendMessage(context.Background(), "changes", []byte("o1"), []byte(`{"x":1}`)))
	assert.Contains(t, buf.String(), "Topic: changes")
	assert.Contains(t, buf.String(), "Key: o1")
	assert.Contains(t, buf.String(), `Value: {"x":1}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.SendMessage(ctx, "changes", nil, nil), context.Canceled)
	assert.NoError(t, p.Close())
}

func TestDecodeChange(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeChange(cache.Change{
		Outcome: cache.Updated,
		Source:  cache.SourceStream,
		Event:   event("o1", lifecycle.Dispatched, ts),
		Order:   model.Order{ID: "o1", Status: lifecycle.Dispatched, DriverName: model.Str("Marco")},
	})
	require.NoError(t, err)

	rec, err := DecodeChange(data)
	require.NoError(t, err)
	assert.Equal(t, cache.Updated, rec.Outcome)
	assert.Equal(t, "order.dispatched", rec.EventType)
	assert.True(t, rec.Timestamp.Equal(ts))
	assert.Equal(t, "Marco", model.Deref(rec.Order.DriverName))

	_, err = DecodeChange([]byte(`{"outcome":"inserted","order":{}}`))
	assert.ErrorIs(t, err, model.ErrMissingOrderID)
	_, err = DecodeChange([]byte(`nope`))
	assert.Error(t, err)
}
