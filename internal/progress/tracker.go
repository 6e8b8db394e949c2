package progress

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const (
	DefaultTickInterval = time.Second

	fetchTimeout = 10 * time.Second
)

var (
	ErrAlreadyTracked = errors.New("order is already tracked")
	ErrTrackerClosed  = errors.New("tracker closed")
	ErrUnknownOrder   = errors.New("order not found")
)

type OrderReader interface {
	Get(orderID string) (model.Order, bool)
}

type DeliveryFetcher interface {
	GetDelivery(ctx context.Context, orderID string) (model.DeliveryInfo, error)
}

type UpdateFunc func(View)

type TrackerOption func(*Tracker)

func WithTickInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.interval = d
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// Tracker keeps a live progress view for each tracked order. Every tracked
// order owns one ticker that exists only between Track and Untrack.
type Tracker struct {
	orders   OrderReader
	delivery DeliveryFetcher
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	tracks map[string]*track
	closed bool
}

type track struct {
	id       string
	onUpdate UpdateFunc
	cancel   context.CancelFunc
	done     chan struct{}
	kick     chan struct{}
	refetch  atomic.Bool

	mu      sync.Mutex
	info    *model.DeliveryInfo
	infoAt  time.Time
	infoErr error
}

// NewTracker builds a tracker over orders. delivery may be nil, in which case
// arrival times are estimated from the order alone.
func NewTracker(orders OrderReader, delivery DeliveryFetcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		orders:   orders,
		delivery: delivery,
		interval: DefaultTickInterval,
		now:      time.Now,
		logger:   zap.NewNop(),
		tracks:   make(map[string]*track),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("tracker")
	return t
}

// Track starts emitting views of orderID to onUpdate: once immediately, then
// every tick until the order is delivered, and again whenever Notify reports a
// change. onUpdate runs on the tracker's goroutine and must not call Untrack
// or Close.
func (t *Tracker) Track(ctx context.Context, orderID string, onUpdate UpdateFunc) error {
	if onUpdate == nil {
		onUpdate = func(View) {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTrackerClosed
	}
	if _, found := t.tracks[orderID]; found {
		return ErrAlreadyTracked
	}

	runCtx, cancel := context.WithCancel(ctx)
	tr := &track{
		id:       orderID,
		onUpdate: onUpdate,
		cancel:   cancel,
		done:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
	}
	tr.refetch.Store(true)
	t.tracks[orderID] = tr
	metrics.TrackedOrders.Inc()
	t.logger.Info("Tracking order", zap.String("order_id", orderID))

	go t.run(runCtx, tr)
	return nil
}

// Untrack stops tracking orderID and waits until its ticker is released. It
// reports whether the order was tracked.
func (t *Tracker) Untrack(orderID string) bool {
	t.mu.Lock()
	tr, found := t.tracks[orderID]
	if found {
		delete(t.tracks, orderID)
		metrics.TrackedOrders.Dec()
	}
	t.mu.Unlock()

	if !found {
		return false
	}
	tr.cancel()
	<-tr.done
	t.logger.Info("Stopped tracking order", zap.String("order_id", orderID))
	return true
}

// Close untracks every order. Track fails afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	ids := make([]string, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Untrack(id)
	}
}

func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Notify tells the tracker that orderID changed through an event of
// eventType. Delivery milestones also refresh the backend delivery info.
func (t *Tracker) Notify(orderID, eventType string) {
	t.mu.Lock()
	tr, found := t.tracks[orderID]
	t.mu.Unlock()
	if !found {
		return
	}

	if status, err := lifecycle.StatusFromEventType(eventType); err == nil && lifecycle.HasDispatched(status) {
		tr.refetch.Store(true)
	}
	select {
	case tr.kick <- struct{}{}:
	default:
	}
}

// Current derives the view of orderID right now, using the delivery info of
// an active track when there is one.
func (t *Tracker) Current(orderID string) (View, error) {
	t.mu.Lock()
	tr := t.tracks[orderID]
	t.mu.Unlock()

	v, ok := t.derive(orderID, tr)
	if !ok {
		return View{}, ErrUnknownOrder
	}
	return v, nil
}

func (t *Tracker) run(ctx context.Context, tr *track) {
	defer close(tr.done)
	defer t.forget(tr)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	tick := ticker.C

	emit := func() {
		if tr.refetch.Swap(false) {
			t.fetch(ctx, tr)
		}
		if ctx.Err() != nil {
			return
		}
		v, _ := t.derive(tr.id, tr)
		tr.onUpdate(v)
		if v.Delivered && tick != nil {
			ticker.Stop()
			tick = nil
			t.logger.Debug("Countdown finished", zap.String("order_id", tr.id))
		}
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.kick:
			emit()
		case <-tick:
			emit()
		}
	}
}

// forget drops tr from the registry when its context ended without Untrack.
func (t *Tracker) forget(tr *track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracks[tr.id] == tr {
		delete(t.tracks, tr.id)
		metrics.TrackedOrders.Dec()
	}
}

func (t *Tracker) fetch(ctx context.Context, tr *track) {
	if t.delivery == nil {
		return
	}
	if o, ok := t.orders.Get(tr.id); ok && !lifecycle.HasDispatched(o.Status) {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	info, err := t.delivery.GetDelivery(fetchCtx, tr.id)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("Failed to fetch delivery info", zap.String("order_id", tr.id), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("fetch_delivery").Inc()
		}
		tr.infoErr = err
		return
	}
	tr.info = &info
	tr.infoAt = t.now()
	tr.infoErr = nil
}

func (t *Tracker) derive(orderID string, tr *track) (View, bool) {
	var (
		info    *model.DeliveryInfo
		infoAt  time.Time
		infoErr error
	)
	if tr != nil {
		tr.mu.Lock()
		info, infoAt, infoErr = tr.info, tr.infoAt, tr.infoErr
		tr.mu.Unlock()
	}

	o, ok := t.orders.Get(orderID)
	switch {
	case ok:
	case info != nil:
		o = model.Order{ID: orderID, Status: info.CurrentStatus}
	default:
		v := View{OrderID: orderID, Steps: Steps("", nil), Error: ErrUnknownOrder.Error()}
		if infoErr != nil {
			v.Error = infoErr.Error()
		}
		return v, false
	}

	var eta time.Time
	if info != nil {
		fillFromDelivery(&o, *info)
		switch {
		case !info.EstimatedArrival.IsZero():
			eta = info.EstimatedArrival.Time
		case info.EstimatedArrivalMinutes != nil:
			eta = infoAt.Add(time.Duration(*info.EstimatedArrivalMinutes) * time.Minute)
		}
	}
	if eta.IsZero() {
		eta, _ = EstimateArrival(o)
	}

	v := Derive(o, eta, t.now())
	if infoErr != nil {
		v.Error = infoErr.Error()
	}
	return v, true
}

// fillFromDelivery completes o with tracking data the order record lacks.
// Values already held by the order are kept.
func fillFromDelivery(o *model.Order, info model.DeliveryInfo) {
	if o.DriverName == nil && info.DriverName != "" {
		o.DriverName = model.Str(info.DriverName)
	}
	if o.TrackingID == nil && info.TrackingID != "" {
		o.TrackingID = model.Str(info.TrackingID)
	}
	tl := info.Timeline
	if o.Timeline != nil {
		if !o.Timeline.DispatchedAt.IsZero() {
			tl.DispatchedAt = o.Timeline.DispatchedAt
		}
		if !o.Timeline.InTransitAt.IsZero() {
			tl.InTransitAt = o.Timeline.InTransitAt
		}
		if !o.Timeline.DeliveredAt.IsZero() {
			tl.DeliveredAt = o.Timeline.DeliveredAt
		}
	}
	o.Timeline = &tl
}
