package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeBackend serves the orders snapshot, the state aggregate and a push
// stream that sends events once a client connects.
func fakeBackend(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"o1","status":"pending_supplier","pizza_name":"Margherita","created_at":"2025-03-01T12:00:00","updated_at":"2025-03-01T12:00:00"},
			{"id":"o3","status":"ready","created_at":"2025-03-01T11:00:00","updated_at":"2025-03-01T11:30:00"}
		]`))
	})
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statistics":{"total_orders":3},"active_drivers":[],"last_updated":"2025-03-01T12:05:00"}`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, ev := range events {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(ev))
		}
		select {
		case <-done:
		case <-r.Context().Done():
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return srv
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg, err := config.Parse(map[string]string{
		"BACKEND_URL":            backendURL + "/api",
		"STREAM_URL":             "ws" + strings.TrimPrefix(backendURL, "http") + "/ws",
		"STREAM_RECONNECT_DELAY": "50ms",
		"HTTP_ENABLED":           "false",
		"CONSOLE_ENABLED":        "false",
		"DASHBOARD_INTERVAL":     "1h",
	})
	require.NoError(t, err)
	return cfg
}

func TestApp_ReconcilesSnapshotAndStream(t *testing.T) {
	srv := fakeBackend(t,
		`{"event_type":"order.supplier_accepted","order":{"id":"o1","status":"supplier_accepted","supplier_notes":"fresh basil"},"timestamp":"2025-03-01T12:01:00"}`,
		`{"event_type":"order.created","order":{"id":"o2","status":"created"},"timestamp":"2025-03-01T12:02:00"}`,
		`{"broken":`,
	)
	cfg := testConfig(t, srv.URL)
	cfg.Kafka.ChangeFeed = true
	cfg.Kafka.ConsoleProducer = true

	out := &lockedBuffer{}
	a, err := New(cfg, nil, strings.NewReader(""), out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		o, found := a.Orders().Get("o1")
		return found && o.Status == lifecycle.SupplierAccepted && a.Orders().Len() == 3
	}, 3*time.Second, 10*time.Millisecond)

	o1, _ := a.Orders().Get("o1")
	require.NotNil(t, o1.SupplierNotes)
	assert.Equal(t, "fresh basil", *o1.SupplierNotes)

	o2, found := a.Orders().Get("o2")
	require.True(t, found)
	assert.Equal(t, lifecycle.Created, o2.Status)

	require.Eventually(t, func() bool {
		st, err := a.poller.Snapshot()
		return err == nil && st.Statistics.TotalOrders == 3
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Contains(t, out.String(), "--- CHANGE_FEED (CONSOLE) ---")
	assert.Contains(t, out.String(), "Key: o2")
}

func TestApp_ConsoleExitStopsRun(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(t, srv.URL)
	cfg.Console.Enabled = true

	out := &lockedBuffer{}
	a, err := New(cfg, nil, strings.NewReader("list\nexit\n"), out)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(context.Background()) }()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after console exit")
	}
	assert.Contains(t, out.String(), "Bye")
	assert.Equal(t, []string{}, a.tracker.Tracked())
}

func TestApp_BackendDownIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	cfg := testConfig(t, srv.URL)
	srv.Close()

	a, err := New(cfg, nil, strings.NewReader(""), &lockedBuffer{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))
	assert.Zero(t, a.Orders().Len())
	assert.ErrorContains(t, a.Orders().SnapshotErr(), "failed to load orders snapshot")
}

func TestApp_SnapshotFailureIsRetryable(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"detail":"warming up"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"o1","status":"ready","created_at":"2025-03-01T12:00:00"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.Console.Enabled = true

	out := &lockedBuffer{}
	a, err := New(cfg, nil, strings.NewReader("list\nlist retry\nexit\n"), out)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(context.Background()) }()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after console exit")
	}

	text := out.String()
	assert.Contains(t, text, "Run 'list retry' to try again")
	assert.Contains(t, text, "Snapshot reloaded: 1 inserted, 0 updated, 0 skipped")
	assert.Contains(t, text, "- o1 |")
	assert.NoError(t, a.Orders().SnapshotErr())
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_RedisTransport(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Stream.Transport = config.TransportRedis

	a, err := New(cfg, nil, strings.NewReader(""), &lockedBuffer{})
	require.NoError(t, err)
	require.NotNil(t, a.redis)
	assert.NoError(t, a.redis.Close())
}

func TestNew_UnknownTransport(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Stream.Transport = "smoke-signals"

	_, err := New(cfg, nil, strings.NewReader(""), &lockedBuffer{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
