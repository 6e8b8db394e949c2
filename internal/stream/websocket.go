package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 1 << 20

// WebSocketDialer subscribes to the backend's /ws push endpoint.
type WebSocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
}

func NewWebSocketDialer(url string) *WebSocketDialer {
	return &WebSocketDialer{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed with status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

// ReadMessage blocks until the next data frame. Cancellation is delivered by
// closing the connection.
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
