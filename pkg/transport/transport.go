// Package transport provides the single duplex message channel the voice
// client speaks its framed protocol over.
//
// The production implementation is a WebSocket (github.com/coder/websocket)
// carrying one protocol frame per binary message. Text messages are not part
// of the protocol and are skipped by [Conn.Receive].
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ChatPath is the fixed endpoint path on the serving host.
const ChatPath = "/api/chat"

var (
	// ErrClosed is returned by Send and Receive after the local side closed
	// the connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrPeerClosed is returned by Receive when the remote side closed the
	// connection with a normal or going-away status.
	ErrPeerClosed = errors.New("transport: closed by peer")
)

// Conn is one open duplex connection. Send must not be called concurrently
// with itself; Receive must not be called concurrently with itself. Send and
// Receive may run concurrently with each other.
type Conn interface {
	// Send writes one message. It blocks until the message is handed to the
	// network or ctx is done.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks until the next message arrives. A peer close yields an
	// error wrapping [ErrPeerClosed]; any other terminal failure is returned
	// wrapped as is.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to [Dialer].
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// EndpointURL derives the chat endpoint from a page origin. An http origin
// maps to ws and an https origin maps to wss; ws and wss URLs are accepted
// as is. Any path on origin is replaced by [ChatPath].
func EndpointURL(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("transport: parse origin %q: %w", origin, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("transport: origin %q: unsupported scheme %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("transport: origin %q has no host", origin)
	}
	u.Path = ChatPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
