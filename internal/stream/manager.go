//go:generate mockgen -source ./manager.go -destination=./mocks/manager.go -package=mock_stream
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const DefaultReconnectDelay = 3 * time.Second

var (
	ErrAlreadyStarted = errors.New("stream manager already started")
	ErrStopped        = errors.New("stream manager stopped")
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Conn is one established push subscription.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type MessageHandler func(model.OrderEvent)

type StateHandler func(State)

type Option func(*Manager)

func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.delay = d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// Manager owns one logical push subscription. It reconnects after a fixed
// delay for as long as it runs and forwards every decoded event in arrival
// order.
type Manager struct {
	dialer Dialer
	delay  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool

	onMessage MessageHandler
	onState   StateHandler
}

func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		delay:  DefaultReconnectDelay,
		logger: zap.NewNop(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("stream")
	return m
}

// Start makes the first connection attempt in the background and registers
// the callbacks. Callbacks run on the manager's goroutine, one at a time, and
// must not call Stop.
func (m *Manager) Start(ctx context.Context, onMessage MessageHandler, onState StateHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	if onMessage == nil {
		onMessage = func(model.OrderEvent) {}
	}
	if onState == nil {
		onState = func(State) {}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.started = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.onMessage = onMessage
	m.onState = onState

	go m.run(runCtx)
	return nil
}

// Stop closes the active connection and cancels any pending reconnection.
// No callback fires after Stop returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	conn := m.conn
	done := m.done
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("Error closing push connection", zap.Error(err))
		}
	}
	<-done
	m.logger.Info("Push subscription stopped")
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected is the liveness signal: true only while the connection is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setConn(nil)

	for attempt := 1; ; attempt++ {
		m.setState(StateConnecting)

		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			m.setState(StateClosed)
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("Push connection failed", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			if !m.setConn(conn) {
				_ = conn.Close()
				m.setState(StateClosed)
				return
			}
			m.logger.Info("Push connection open", zap.Int("attempt", attempt))
			attempt = 0
			m.setState(StateOpen)
			m.read(ctx, conn)
			m.setConn(nil)
			_ = conn.Close()
			m.setState(StateClosed)
		}

		if ctx.Err() != nil {
			return
		}

		metrics.StreamReconnectsTotal.Inc()
		m.logger.Info("Reconnecting push subscription", zap.Duration("delay", m.delay))

		timer := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) read(ctx context.Context, conn Conn) {
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("Push connection closed", zap.Error(err))
			}
			return
		}

		ev, err := model.DecodeEvent(data)
		if err != nil {
			metrics.StreamMessagesTotal.WithLabelValues("malformed").Inc()
			m.logger.Warn("Dropping malformed push message", zap.Error(err), zap.Int("size", len(data)))
			continue
		}
		if ctx.Err() != nil {
			return
		}
		metrics.StreamMessagesTotal.WithLabelValues("ok").Inc()
		m.onMessage(ev)
	}
}

// setConn records the active connection. It reports false when the manager
// has been stopped in the meantime.
func (m *Manager) setConn(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn != nil && m.stopped {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	if s == StateOpen {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
	m.onState(s)
}
