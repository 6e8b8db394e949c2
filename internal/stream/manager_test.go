package stream_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/stream"
	mock_stream "gitlab.ozon.dev/pupkingeorgij/ordersync/internal/stream/mocks"
)

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials []time.Time
}

func (d *fakeDialer) Dial(ctx context.Context) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, time.Now())
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

type recorder struct {
	mu     sync.Mutex
	events []model.OrderEvent
	states []stream.State
}

func (r *recorder) onMessage(ev model.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) onState(s stream.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) eventIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Order.ID
	}
	return out
}

func (r *recorder) stateLog() []stream.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.State(nil), r.states...)
}

func msg(id string) []byte {
	return []byte(`{"event_type":"order.ready","order":{"id":"` + id + `","status":"ready"},"timestamp":"2025-03-01T12:00:00Z"}`)
}

func TestManager_ForwardsEventsInOrderAndDropsMalformed(t *testing.T) {
	conn := newFakeConn()
	m := stream.NewManager(&fakeDialer{conns: []*fakeConn{conn}}, stream.WithReconnectDelay(time.Hour))
	rec := &recorder{}

	require.NoError(t, m.Start(context.Background(), rec.onMessage, rec.onState))
	defer m.Stop()

	conn.msgs <- msg("A")
	conn.msgs <- []byte(`{"event_type":`)
	conn.msgs <- []byte(`{"event_type":"order.ready","order":{},"timestamp":"2025-03-01T12:00:00Z"}`)
	conn.msgs <- msg("B")
	conn.msgs <- msg("C")

	require.Eventually(t, func() bool { return len(rec.eventIDs()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B", "C"}, rec.eventIDs())
	assert.True(t, m.Connected(), "malformed payloads must not tear down the subscription")
}

func TestManager_ReconnectsOnceAfterUnexpectedClose(t *testing.T) {
	const delay = 300 * time.Millisecond

	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	m := stream.NewManager(dialer, stream.WithReconnectDelay(delay))
	rec := &recorder{}

	require.NoError(t, m.Start(context.Background(), rec.onMessage, rec.onState))
	defer m.Stop()

	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, dialer.dialCount())

	first.Close()
	require.Eventually(t, func() bool { return m.State() == stream.StateClosed }, time.Second, time.Millisecond)

	time.Sleep(delay / 2)
	assert.False(t, m.Connected(), "liveness must read false during the gap")
	assert.Equal(t, 1, dialer.dialCount(), "no reconnection before the delay elapses")

	require.Eventually(t, m.Connected, 2*delay, 5*time.Millisecond)
	assert.Equal(t, 2, dialer.dialCount(), "exactly one reconnection attempt")

	time.Sleep(2 * delay)
	assert.Equal(t, 2, dialer.dialCount())

	assert.Equal(t, []stream.State{
		stream.StateConnecting,
		stream.StateOpen,
		stream.StateClosed,
		stream.StateConnecting,
		stream.StateOpen,
	}, rec.stateLog())
}

func TestManager_RetriesFailedDials(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dialer := mock_stream.NewMockDialer(ctrl)
	conn := mock_stream.NewMockConn(ctrl)

	gomock.InOrder(
		dialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection refused")),
		dialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection refused")),
		dialer.EXPECT().Dial(gomock.Any()).Return(conn, nil),
	)
	conn.EXPECT().ReadMessage(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	conn.EXPECT().Close().Return(nil).MinTimes(1)

	m := stream.NewManager(dialer, stream.WithReconnectDelay(10*time.Millisecond))
	require.NoError(t, m.Start(context.Background(), nil, nil))

	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	m.Stop()
	assert.False(t, m.Connected())
}

func TestManager_NoCallbacksAfterStop(t *testing.T) {
	conn := newFakeConn()
	m := stream.NewManager(&fakeDialer{conns: []*fakeConn{conn}}, stream.WithReconnectDelay(10*time.Millisecond))
	rec := &recorder{}

	require.NoError(t, m.Start(context.Background(), rec.onMessage, rec.onState))
	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)

	m.Stop()
	states := rec.stateLog()
	events := rec.eventIDs()

	select {
	case conn.msgs <- msg("late"):
	default:
	}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, states, rec.stateLog())
	assert.Equal(t, events, rec.eventIDs())

	m.Stop()
	assert.ErrorIs(t, m.Start(context.Background(), nil, nil), stream.ErrStopped)
}

func TestManager_StopDuringBackoff(t *testing.T) {
	dialer := &fakeDialer{}
	m := stream.NewManager(dialer, stream.WithReconnectDelay(time.Hour))

	require.NoError(t, m.Start(context.Background(), nil, nil))
	require.Eventually(t, func() bool { return m.State() == stream.StateClosed }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the pending reconnection")
	}
	assert.Equal(t, 1, dialer.dialCount())
}

func TestManager_StartTwice(t *testing.T) {
	m := stream.NewManager(&fakeDialer{}, stream.WithReconnectDelay(time.Hour))
	defer m.Stop()

	require.NoError(t, m.Start(context.Background(), nil, nil))
	assert.ErrorIs(t, m.Start(context.Background(), nil, nil), stream.ErrAlreadyStarted)
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := stream.NewManager(&fakeDialer{})
	m.Stop()
	assert.Equal(t, stream.StateIdle, m.State())
}
