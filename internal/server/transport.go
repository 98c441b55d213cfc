package server

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/adcondev/convo-daemon/internal/protocol"
)

// wsTransport writes JSON frames to a WebSocket connection
type wsTransport struct {
	conn        *websocket.Conn
	sendTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, sendTimeout time.Duration) *wsTransport {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &wsTransport{conn: conn, sendTimeout: sendTimeout}
}

// Send writes one frame, bounded by the send timeout even if ctx is already done.
func (t *wsTransport) Send(ctx context.Context, frame protocol.Frame) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.sendTimeout)
	defer cancel()
	return wsjson.Write(ctx, t.conn, frame)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}
