package stream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/stream"
)

func TestWebSocketDialer_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, msg("A"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, msg("B"))
		<-release
	}))
	defer srv.Close()
	defer close(release)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	m := stream.NewManager(stream.NewWebSocketDialer(url), stream.WithReconnectDelay(time.Hour))
	rec := &recorder{}

	require.NoError(t, m.Start(context.Background(), rec.onMessage, rec.onState))
	defer m.Stop()

	require.Eventually(t, func() bool { return len(rec.eventIDs()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, rec.eventIDs())
	assert.True(t, m.Connected())
}

func TestWebSocketDialer_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := stream.NewWebSocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	_, err := d.Dial(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
