package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/coder/websocket"
)

// Compile-time assertions.
var _ Dialer = (*WebSocketDialer)(nil)
var _ Conn = (*wsConn)(nil)

// defaultReadLimit bounds a single inbound message. Decoded Opus packets are
// tiny; raw PCM16 frames of a few seconds fit comfortably.
const defaultReadLimit = 1 << 20

// ── Options ────────────────────────────────────────────────────────────────────

// Option configures a [WebSocketDialer].
type Option func(*WebSocketDialer)

// WithReadLimit sets the maximum size of one inbound message in bytes.
func WithReadLimit(n int64) Option {
	return func(d *WebSocketDialer) { d.readLimit = n }
}

// WithDialOptions sets the options passed to websocket.Dial, for example to
// supply custom headers or an HTTP client.
func WithDialOptions(o *websocket.DialOptions) Option {
	return func(d *WebSocketDialer) { d.dialOpts = o }
}

// ── Dialer ─────────────────────────────────────────────────────────────────────

// WebSocketDialer dials WebSocket connections.
type WebSocketDialer struct {
	readLimit int64
	dialOpts  *websocket.DialOptions
}

// NewWebSocketDialer returns a dialer with the given options applied.
func NewWebSocketDialer(opts ...Option) *WebSocketDialer {
	d := &WebSocketDialer{readLimit: defaultReadLimit}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial opens a WebSocket to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, d.dialOpts)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	conn.SetReadLimit(d.readLimit)
	return NewConn(conn), nil
}

// NewConn wraps an established WebSocket. Fake servers in tests use it on the
// accepting side.
func NewConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn, done: make(chan struct{})}
}

// ── Conn ───────────────────────────────────────────────────────────────────────

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	if c.closed() {
		return ErrClosed
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, msg); err != nil {
		if c.closed() {
			return ErrClosed
		}
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		if c.closed() {
			return nil, ErrClosed
		}
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, c.classify(err)
		}
		if typ != websocket.MessageBinary {
			slog.Debug("transport: skipping non-binary message", "len", len(data))
			continue
		}
		return data, nil
	}
}

func (c *wsConn) classify(err error) error {
	if c.closed() {
		return ErrClosed
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return fmt.Errorf("transport: receive: %w", ErrPeerClosed)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("transport: receive: %w", err)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close(websocket.StatusNormalClosure, "client closed")
		// A close racing the peer's close is not a failure.
		if websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	if err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}
