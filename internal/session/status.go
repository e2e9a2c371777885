package session

import (
	"errors"

	"github.com/MrWong99/orbtalk/pkg/transport"
)

// Status texts shown to the user.
const (
	TextConnecting      = "Connecting..."
	TextWaiting         = "Waiting for model..."
	TextConnected       = "Connected - speak now"
	TextReady           = "Ready"
	TextDisconnected    = "Disconnected"
	TextConnectionError = "Connection error"
	TextTimedOut        = "Connection timed out"
	textFailedPrefix    = "Failed: "
)

// StatusKind classifies a [Status] for presentation.
type StatusKind int

const (
	// KindIdle is a neutral status: ready to start, or cleanly ended.
	KindIdle StatusKind = iota

	// KindConnecting covers dialling and waiting for the handshake.
	KindConnecting

	// KindConnected means the conversation is live.
	KindConnected

	// KindError is the error overlay: a server Error frame or a fatal cause.
	KindError
)

// String returns the lower-case kind name.
func (k StatusKind) String() string {
	switch k {
	case KindConnecting:
		return "connecting"
	case KindConnected:
		return "connected"
	case KindError:
		return "error"
	default:
		return "idle"
	}
}

// Status is the user-visible session status.
type Status struct {
	Kind StatusKind
	Text string
}

// Listener receives status and transcript updates. Calls are serialised and
// made from the session's own goroutines, so implementations must not call
// [Session.Stop] synchronously.
type Listener interface {
	OnStatus(Status)

	// OnTranscript is called with the full display text every time it
	// changes, including "" when it is cleared.
	OnTranscript(text string)
}

// nopListener discards all updates.
type nopListener struct{}

func (nopListener) OnStatus(Status)     {}
func (nopListener) OnTranscript(string) {}

// ListenerFuncs adapts optional functions to [Listener].
type ListenerFuncs struct {
	Status     func(Status)
	Transcript func(string)
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) OnStatus(s Status) {
	if l.Status != nil {
		l.Status(s)
	}
}

func (l ListenerFuncs) OnTranscript(text string) {
	if l.Transcript != nil {
		l.Transcript(text)
	}
}

// cause is why a session was torn down.
type cause int

const (
	causeUser cause = iota
	causePeerClosed
	causeTransport
	causeTimeout
	causeFailed
)

// String is used as the close reason in logs and metrics.
func (c cause) String() string {
	switch c {
	case causeUser:
		return "user_stop"
	case causePeerClosed:
		return "peer_closed"
	case causeTransport:
		return "transport_error"
	case causeTimeout:
		return "inactivity_timeout"
	default:
		return "failed"
	}
}

// finalStatus is the status shown once teardown completes.
func (c cause) finalStatus(err error) Status {
	switch c {
	case causeUser:
		return Status{Kind: KindIdle, Text: TextReady}
	case causePeerClosed:
		return Status{Kind: KindIdle, Text: TextDisconnected}
	case causeTransport:
		return Status{Kind: KindError, Text: TextConnectionError}
	case causeTimeout:
		return Status{Kind: KindError, Text: TextTimedOut}
	default:
		text := textFailedPrefix + "unknown error"
		if err != nil {
			text = textFailedPrefix + err.Error()
		}
		return Status{Kind: KindError, Text: text}
	}
}

// classifyReceive maps a terminal receive error to a teardown cause.
func classifyReceive(err error) cause {
	if errors.Is(err, transport.ErrPeerClosed) {
		return causePeerClosed
	}
	return causeTransport
}
