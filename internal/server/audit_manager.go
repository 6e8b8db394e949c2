package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
)

// AuditManager batches audit entries of operator actions and writes them
// from a small pool of workers. A batch is flushed when full or when its
// oldest entry is older than the timeout.
type AuditManager struct {
	workers   int
	batchSize int
	timeout   time.Duration
	logger    *zap.Logger

	entries        chan AuditLogEntry
	batches        chan []AuditLogEntry
	shutdownSignal chan struct{}
	startOnce      sync.Once
	stopOnce       sync.Once
	pending        atomic.Int64
	wg             sync.WaitGroup

	// sendMu orders sends to entries before the aggregator's final drain.
	sendMu  sync.RWMutex
	running bool
}

func NewAuditManager(workers, batchSize int, timeout time.Duration, logger *zap.Logger) *AuditManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditManager{
		workers:        workers,
		batchSize:      batchSize,
		timeout:        timeout,
		logger:         logger.Named("audit"),
		entries:        make(chan AuditLogEntry, workers*batchSize*2),
		batches:        make(chan []AuditLogEntry, workers*2),
		shutdownSignal: make(chan struct{}),
	}
}

// Start launches the aggregator and the workers. Cancelling ctx has the same
// effect as Shutdown.
func (m *AuditManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.sendMu.Lock()
		select {
		case <-m.shutdownSignal:
			m.sendMu.Unlock()
			return
		default:
		}
		m.running = true
		m.wg.Add(1 + m.workers)
		m.sendMu.Unlock()
		m.logger.Debug("Starting audit manager", zap.Int("workers", m.workers), zap.Int("batch_size", m.batchSize))

		go m.aggregate()
		for i := 0; i < m.workers; i++ {
			go m.work(i)
		}

		go func() {
			select {
			case <-ctx.Done():
				m.Shutdown(context.Background())
			case <-m.shutdownSignal:
			}
		}()
	})
}

// Shutdown flushes queued entries and waits for the workers or ctx.
func (m *AuditManager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.logger.Debug("Initiating audit manager shutdown")
		m.sendMu.Lock()
		m.running = false
		close(m.shutdownSignal)
		m.sendMu.Unlock()

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Debug("Audit manager shutdown completed")
		case <-ctx.Done():
			m.logger.Warn("Audit manager shutdown interrupted", zap.Int("pending", m.Pending()))
		}
	})
}

// LogEntry queues entry. Entries that arrive while the manager is not
// running, or cannot be queued before ctx ends, are written immediately.
func (m *AuditManager) LogEntry(ctx context.Context, entry AuditLogEntry) {
	m.pending.Add(1)

	m.sendMu.RLock()
	defer m.sendMu.RUnlock()
	if !m.running {
		m.writeDirect(entry)
		return
	}

	select {
	case m.entries <- entry:
	case <-ctx.Done():
		m.writeDirect(entry)
	}
}

// Pending counts entries accepted but not yet written.
func (m *AuditManager) Pending() int {
	return int(m.pending.Load())
}

// aggregate stops only on shutdownSignal. By then Shutdown holds no sender
// in flight, so the final drain sees every queued entry.
func (m *AuditManager) aggregate() {
	defer m.wg.Done()

	var (
		batch   []AuditLogEntry
		timer   *time.Timer
		expired <-chan time.Time
	)
	flush := func() {
		if len(batch) > 0 {
			m.dispatch(batch)
			batch = nil
		}
		expired = nil
	}

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	drain:
		for {
			select {
			case entry := <-m.entries:
				batch = append(batch, entry)
			default:
				break drain
			}
		}
		for len(batch) > 0 {
			n := min(len(batch), m.batchSize)
			m.dispatch(batch[:n])
			batch = batch[n:]
		}
		close(m.batches)
	}()

	for {
		select {
		case entry := <-m.entries:
			batch = append(batch, entry)
			switch {
			case len(batch) >= m.batchSize:
				flush()
			case len(batch) == 1:
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(m.timeout)
				expired = timer.C
			}
		case <-expired:
			flush()
		case <-m.shutdownSignal:
			return
		}
	}
}

// dispatch hands a copy of batch to the workers, or writes it inline when
// they are all busy.
func (m *AuditManager) dispatch(batch []AuditLogEntry) {
	out := append([]AuditLogEntry(nil), batch...)
	select {
	case m.batches <- out:
	default:
		m.write(-1, out)
	}
}

func (m *AuditManager) work(id int) {
	defer m.wg.Done()
	for batch := range m.batches {
		m.write(id, batch)
	}
}

func (m *AuditManager) writeDirect(entry AuditLogEntry) {
	metrics.OperationErrorsTotal.WithLabelValues("audit_direct_write").Inc()
	m.logger.Warn("Audit entry written directly", zap.Object("entry", entry))
	m.pending.Add(-1)
}

func (m *AuditManager) write(worker int, batch []AuditLogEntry) {
	m.logger.Info("Audit batch",
		zap.Int("worker", worker),
		zap.Int("size", len(batch)),
		zap.Array("entries", auditBatch(batch)),
	)
	m.pending.Add(-int64(len(batch)))
}
