package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// startServer launches a WebSocket test server. handler receives the accepted
// conn; the server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ChatPath {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	u, err := EndpointURL(srv.URL)
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}
	return u
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEndpointURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		origin  string
		want    string
		wantErr bool
	}{
		{origin: "http://localhost:8000", want: "ws://localhost:8000/api/chat"},
		{origin: "https://voice.example.com", want: "wss://voice.example.com/api/chat"},
		{origin: "https://voice.example.com/some/page?x=1#top", want: "wss://voice.example.com/api/chat"},
		{origin: "HTTPS://voice.example.com", want: "wss://voice.example.com/api/chat"},
		{origin: "ws://127.0.0.1:9000", want: "ws://127.0.0.1:9000/api/chat"},
		{origin: "ftp://example.com", wantErr: true},
		{origin: "http://", wantErr: true},
		{origin: "::bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			t.Parallel()
			got, err := EndpointURL(tt.origin)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("EndpointURL(%q) = %q, want error", tt.origin, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("EndpointURL(%q): %v", tt.origin, err)
			}
			if got != tt.want {
				t.Errorf("EndpointURL(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}

func TestWebSocket_EchoBinary(t *testing.T) {
	t.Parallel()
	url := startServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	})

	ctx := testCtx(t)
	c, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	msg := []byte{0x01, 0xDE, 0xAD}
	if err := c.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Receive = %x, want %x", got, msg)
	}
}

func TestWebSocket_SkipsTextMessages(t *testing.T) {
	t.Parallel()
	url := startServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte("not a frame"))
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{0x06})
		_, _, _ = conn.Read(ctx)
	})

	ctx := testCtx(t)
	c, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	got, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, []byte{0x06}) {
		t.Errorf("Receive = %x, want the binary ping", got)
	}
}

func TestWebSocket_PeerCloseIsReported(t *testing.T) {
	t.Parallel()
	url := startServer(t, func(conn *websocket.Conn) {
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	ctx := testCtx(t)
	c, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	_, err = c.Receive(ctx)
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("Receive error = %v, want ErrPeerClosed", err)
	}
}

func TestWebSocket_AbnormalCloseIsNotPeerClosed(t *testing.T) {
	t.Parallel()
	url := startServer(t, func(conn *websocket.Conn) {
		conn.Close(websocket.StatusInternalError, "boom")
	})

	ctx := testCtx(t)
	c, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	_, err = c.Receive(ctx)
	if err == nil || errors.Is(err, ErrPeerClosed) || errors.Is(err, ErrClosed) {
		t.Fatalf("Receive error = %v, want an abnormal close error", err)
	}
}

func TestWebSocket_SendAfterClose(t *testing.T) {
	t.Parallel()
	url := startServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.Read(context.Background())
	})

	ctx := testCtx(t)
	c, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := c.Send(ctx, []byte{0x06}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := c.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestWebSocket_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + ChatPath
	if _, err := NewWebSocketDialer().Dial(testCtx(t), url); err == nil {
		t.Fatal("Dial against a non-WebSocket endpoint succeeded")
	}
}
