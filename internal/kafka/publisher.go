package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const (
	DefaultTopic           = "order_changes"
	DefaultBufferSize      = 256
	DefaultShutdownTimeout = 30 * time.Second
)

type PublisherConfig struct {
	Topic           string
	BufferSize      int
	ShutdownTimeout time.Duration
}

// ChangeRecord is the message value published for every accepted
// observation.
type ChangeRecord struct {
	Outcome   cache.Outcome `json:"outcome"`
	Source    cache.Source  `json:"source"`
	EventType string        `json:"event_type"`
	Timestamp model.Time    `json:"timestamp"`
	Order     model.Order   `json:"order"`
}

// Publisher re-publishes the reconciled order changes. Observe never blocks
// the reconciler: when the buffer is full the change is dropped and counted.
type Publisher struct {
	producer Producer
	config   PublisherConfig
	logger   *zap.Logger

	queue          chan cache.Change
	closed         atomic.Bool
	mu             sync.Mutex
	started        bool
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func NewPublisher(producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		producer:       producer,
		config:         config,
		logger:         logger.Named("change_feed"),
		queue:          make(chan cache.Change, config.BufferSize),
		shutdownSignal: make(chan struct{}),
	}
}

// Observe is a cache.Observer.
func (p *Publisher) Observe(ch cache.Change) {
	if !ch.Outcome.Changed() || p.closed.Load() {
		return
	}
	select {
	case p.queue <- ch:
	default:
		metrics.OperationErrorsTotal.WithLabelValues("change_feed_overflow").Inc()
		p.logger.Warn("Change feed buffer full, dropping change", zap.String("order_id", ch.Order.ID))
	}
}

// Start runs the publishing loop in the background until Shutdown or ctx is
// done. It does nothing after Shutdown or when already started.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed.Load() {
		return
	}
	p.started = true
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Publisher) run(ctx context.Context) {
	p.logger.Info("Starting change feed publisher", zap.String("topic", p.config.Topic))
	defer p.wg.Done()

	for {
		select {
		case ch := <-p.queue:
			p.publish(ctx, ch)
		case <-p.shutdownSignal:
			p.logger.Info("Change feed publisher received shutdown signal, draining")
			p.drain()
			return
		case <-ctx.Done():
			p.logger.Info("Change feed publisher context cancelled, draining")
			p.drain()
			return
		}
	}
}

func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		p.logger.Info("Initiating change feed publisher shutdown")
		p.mu.Lock()
		p.closed.Store(true)
		p.mu.Unlock()
		close(p.shutdownSignal)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("Change feed publisher shutdown complete")
		case <-time.After(p.config.ShutdownTimeout):
			p.logger.Warn("Change feed publisher shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.logger.Error("Failed to close producer", zap.Error(err))
		}
	})
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()
	for {
		select {
		case ch := <-p.queue:
			p.publish(ctx, ch)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ch cache.Change) {
	value, err := EncodeChange(ch)
	if err != nil {
		p.logger.Error("Failed to encode change", zap.String("order_id", ch.Order.ID), zap.Error(err))
		return
	}
	if err := p.producer.SendMessage(ctx, p.config.Topic, []byte(ch.Order.ID), value); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("change_feed_publish").Inc()
		p.logger.Error("Failed to publish change", zap.String("order_id", ch.Order.ID), zap.Error(err))
		return
	}
	metrics.ChangeFeedPublishedTotal.Inc()
}

func EncodeChange(ch cache.Change) ([]byte, error) {
	data, err := json.Marshal(ChangeRecord{
		Outcome:   ch.Outcome,
		Source:    ch.Source,
		EventType: ch.Event.EventType,
		Timestamp: ch.Event.Timestamp,
		Order:     ch.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change record: %w", err)
	}
	return data, nil
}

// DecodeChange parses a record written by EncodeChange.
func DecodeChange(data []byte) (ChangeRecord, error) {
	var rec ChangeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ChangeRecord{}, fmt.Errorf("failed to unmarshal change record: %w", err)
	}
	if rec.Order.ID == "" {
		return ChangeRecord{}, model.ErrMissingOrderID
	}
	return rec, nil
}
