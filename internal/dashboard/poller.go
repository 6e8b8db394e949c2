package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const DefaultInterval = 5 * time.Second

var ErrNoState = errors.New("system state not fetched yet")

type StateFetcher interface {
	GetState(ctx context.Context) (model.SystemState, error)
}

type SnapshotLoader interface {
	LoadInitialData(ctx context.Context) (cache.SnapshotResult, error)
}

type Config struct {
	Interval time.Duration
	// ResyncOrders reloads the orders snapshot into the reconciler on every
	// poll.
	ResyncOrders bool
}

// Poller refreshes the aggregate system state on a fixed interval. A failed
// refresh keeps the last good state and is reported until a later refresh
// succeeds.
type Poller struct {
	fetcher StateFetcher
	loader  SnapshotLoader
	config  Config
	logger  *zap.Logger

	mu        sync.RWMutex
	state     model.SystemState
	hasState  bool
	err       error
	fetchedAt time.Time

	fetchMu        sync.Mutex
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

// NewPoller builds a poller. loader may be nil when ResyncOrders is off.
func NewPoller(fetcher StateFetcher, loader SnapshotLoader, config Config, logger *zap.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:        fetcher,
		loader:         loader,
		config:         config,
		logger:         logger.Named("dashboard"),
		shutdownSignal: make(chan struct{}),
	}
}

// Run polls until Shutdown is called or ctx is cancelled. The first refresh
// happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()
	p.logger.Info("Starting dashboard poller", zap.Duration("interval", p.config.Interval))

	_ = p.refresh(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = p.refresh(ctx)
		case <-p.shutdownSignal:
			p.logger.Info("Dashboard poller received shutdown signal, stopping")
			return
		case <-ctx.Done():
			p.logger.Info("Dashboard poller context cancelled, stopping")
			return
		}
	}
}

func (p *Poller) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)
		p.wg.Wait()
		p.logger.Info("Dashboard poller stopped")
	})
}

// Snapshot returns the last good state. The error is set while the most
// recent refresh has failed; the state is still the last good one then.
func (p *Poller) Snapshot() (model.SystemState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasState && p.err == nil {
		return model.SystemState{}, ErrNoState
	}
	return p.state, p.err
}

func (p *Poller) FetchedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}

// Retry refreshes immediately, outside the regular schedule.
func (p *Poller) Retry(ctx context.Context) error {
	p.logger.Info("Manual dashboard refresh requested")
	return p.refresh(ctx)
}

func (p *Poller) refresh(ctx context.Context) error {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	if p.config.ResyncOrders && p.loader != nil {
		if _, err := p.loader.LoadInitialData(ctx); err != nil {
			p.logger.Warn("Orders resync failed", zap.Error(err))
		}
	}

	state, err := p.fetcher.GetState(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.OperationErrorsTotal.WithLabelValues("fetch_state").Inc()
		p.logger.Warn("Failed to refresh system state", zap.Error(err), zap.Bool("has_previous", p.hasState))
		p.err = fmt.Errorf("failed to refresh system state: %w", err)
		return p.err
	}

	p.state = state
	p.hasState = true
	p.err = nil
	p.fetchedAt = time.Now()
	p.logger.Debug("System state refreshed", zap.Int("total_orders", state.Statistics.TotalOrders))
	return nil
}
