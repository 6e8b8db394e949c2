package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

type OrderSource interface {
	ListOrders(ctx context.Context) ([]model.Order, error)
}

type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceStream   Source = "stream"
)

type Outcome string

const (
	Inserted  Outcome = "inserted"
	Updated   Outcome = "updated"
	Stale     Outcome = "stale"
	Duplicate Outcome = "duplicate"
)

// Changed reports whether the outcome altered the collection.
func (o Outcome) Changed() bool {
	return o == Inserted || o == Updated
}

type Change struct {
	Outcome Outcome
	Source  Source
	Event   model.OrderEvent
	Order   model.Order
}

// Observer is notified after every change to the collection. Observers may
// read the cache but must not write to it.
type Observer func(Change)

type SnapshotResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

type entry struct {
	order      model.Order
	observedAt model.Time
	source     Source
	rank       int64
}

// OrderCache is the canonical collection of orders. It is written only through
// LoadSnapshot and ApplyEvent and keeps the most recently changed orders first.
type OrderCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	front   int64
	back    int64

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	snapMu  sync.Mutex
	snapErr error

	source OrderSource
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*OrderCache)

// WithClock replaces time.Now as the source of load times.
func WithClock(now func() time.Time) Option {
	return func(c *OrderCache) {
		c.now = now
	}
}

func NewOrderCache(source OrderSource, logger *zap.Logger, opts ...Option) *OrderCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &OrderCache{
		entries:   make(map[string]*entry),
		observers: make(map[int]Observer),
		source:    source,
		now:       time.Now,
		logger:    logger.Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadInitialData fetches the bulk snapshot and reconciles it. A failure is
// kept until a later call succeeds, see SnapshotErr.
func (c *OrderCache) LoadInitialData(ctx context.Context) (SnapshotResult, error) {
	c.logger.Info("Loading initial data into order cache")
	orders, err := c.source.ListOrders(ctx)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("load_snapshot").Inc()
		err = fmt.Errorf("failed to load orders snapshot: %w", err)
		c.setSnapshotErr(err)
		return SnapshotResult{}, err
	}
	c.setSnapshotErr(nil)
	res := c.LoadSnapshot(orders)
	c.logger.Info("Order snapshot reconciled",
		zap.Int("received", len(orders)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// SnapshotErr returns the error of the last LoadInitialData call, or nil if
// it succeeded. The cache keeps serving stream updates either way.
func (c *OrderCache) SnapshotErr() error {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snapErr
}

func (c *OrderCache) setSnapshotErr(err error) {
	c.snapMu.Lock()
	c.snapErr = err
	c.snapMu.Unlock()
}

// LoadSnapshot seeds the collection from a bulk read. Orders unknown to the
// cache are appended in backend order; known orders are replaced only by a
// strictly newer observation. An order with neither updated_at nor created_at
// is treated as observed at load time.
func (c *OrderCache) LoadSnapshot(orders []model.Order) SnapshotResult {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	var (
		res      SnapshotResult
		changes  = make([]Change, 0, len(orders))
		loadedAt = model.NewTime(c.now())
	)

	c.mu.Lock()
	for _, o := range orders {
		if o.ID == "" {
			res.Skipped++
			c.logger.Warn("Snapshot order without id skipped")
			continue
		}
		ev := model.EventFromSnapshot(o)
		if ev.Timestamp.IsZero() {
			ev.Timestamp = loadedAt
		}
		ch := c.apply(ev, SourceSnapshot)
		switch ch.Outcome {
		case Inserted:
			res.Inserted++
		case Updated:
			res.Updated++
		default:
			res.Skipped++
		}
		metrics.ReconciledObservationsTotal.WithLabelValues(string(SourceSnapshot), string(ch.Outcome)).Inc()
		if ch.Outcome.Changed() {
			changes = append(changes, ch)
		}
	}
	metrics.OrderCacheItems.Set(float64(len(c.entries)))
	c.mu.Unlock()

	for _, ch := range changes {
		c.notify(ch)
	}
	return res
}

// ApplyEvent merges one stream event. Replaying an event has no effect.
func (c *OrderCache) ApplyEvent(ev model.OrderEvent) (Outcome, error) {
	if err := ev.Normalize(); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("apply_event").Inc()
		return "", err
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	ch := c.apply(ev, SourceStream)
	metrics.OrderCacheItems.Set(float64(len(c.entries)))
	c.mu.Unlock()

	metrics.ReconciledObservationsTotal.WithLabelValues(string(SourceStream), string(ch.Outcome)).Inc()
	c.logger.Debug("Event reconciled",
		zap.String("order_id", ev.Order.ID),
		zap.String("event_type", ev.EventType),
		zap.Time("timestamp", ev.Timestamp.Time),
		zap.String("outcome", string(ch.Outcome)),
	)

	if ch.Outcome.Changed() {
		c.notify(ch)
	}
	return ch.Outcome, nil
}

// apply must be called with mu held.
func (c *OrderCache) apply(ev model.OrderEvent, src Source) Change {
	id := ev.Order.ID
	e, found := c.entries[id]
	if !found {
		e = &entry{
			order:      ev.Order.Clone(),
			observedAt: ev.Timestamp,
			source:     src,
		}
		if src == SourceStream {
			e.rank = c.pushFront()
		} else {
			e.rank = c.pushBack()
		}
		c.entries[id] = e
		return Change{Outcome: Inserted, Source: src, Event: ev, Order: e.order.Clone()}
	}

	if !c.supersedes(ev.Timestamp, src, e) {
		outcome := Stale
		if ev.Timestamp.Equal(e.observedAt.Time) {
			outcome = Duplicate
		}
		return Change{Outcome: outcome, Source: src, Event: ev, Order: e.order.Clone()}
	}

	if ev.Order.Status != "" && ev.Order.Status != e.order.Status && !lifecycle.CanTransition(e.order.Status, ev.Order.Status) {
		c.logger.Debug("Observed transition outside the forward lifecycle",
			zap.String("order_id", id),
			zap.String("from", string(e.order.Status)),
			zap.String("to", string(ev.Order.Status)),
		)
	}

	e.order.Merge(ev.Order)
	e.observedAt = ev.Timestamp
	e.source = src
	e.rank = c.pushFront()
	return Change{Outcome: Updated, Source: src, Event: ev, Order: e.order.Clone()}
}

// supersedes reports whether an observation at ts from src replaces e. Only a
// strictly newer observation wins, except that a stream event beats a
// snapshot observation carrying the same timestamp.
func (c *OrderCache) supersedes(ts model.Time, src Source, e *entry) bool {
	if ts.After(e.observedAt.Time) {
		return true
	}
	return ts.Equal(e.observedAt.Time) && src == SourceStream && e.source == SourceSnapshot
}

func (c *OrderCache) pushFront() int64 {
	c.front++
	return c.front
}

func (c *OrderCache) pushBack() int64 {
	c.back--
	return c.back
}

func (c *OrderCache) Get(orderID string) (model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.entries[orderID]
	if !found {
		return model.Order{}, false
	}
	return e.order.Clone(), true
}

// List returns every order, most recently changed first.
func (c *OrderCache) List() []model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ranked := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].rank > ranked[j].rank
	})

	out := make([]model.Order, len(ranked))
	for i, e := range ranked {
		out[i] = e.order.Clone()
	}
	return out
}

// ListByStatus returns the orders currently in status, in display order.
func (c *OrderCache) ListByStatus(status lifecycle.Status) []model.Order {
	var out []model.Order
	for _, o := range c.List() {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (c *OrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (c *OrderCache) Subscribe(fn Observer) func() {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		delete(c.observers, id)
	}
}

func (c *OrderCache) notify(ch Change) {
	c.obsMu.Lock()
	ids := make([]int, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Observer, len(ids))
	for i, id := range ids {
		fns[i] = c.observers[id]
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
