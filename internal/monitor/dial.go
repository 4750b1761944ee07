package monitor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// wsConn is the subset of *websocket.Conn the monitor depends on. Narrowing
// it to an interface lets tests substitute an in-memory fake instead of
// dialing a real socket.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a new [wsConn] to a URL. The default implementation wraps
// [websocket.Dial]; tests supply a fake that never touches the network.
type Dialer interface {
	Dial(ctx context.Context, url, phone string) (wsConn, error)
}

// defaultDialer dials a real WebSocket using github.com/coder/websocket,
// exactly as pkg/provider/s2s/openai does.
type defaultDialer struct{}

func (defaultDialer) Dial(ctx context.Context, url, phone string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-Bridge-Phone": []string{phone}},
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: dial: %w", err)
	}
	return conn, nil
}
