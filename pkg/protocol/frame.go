// Package protocol implements the framed binary wire protocol spoken between
// the voice client and the model-serving endpoint.
//
// Every transport message carries exactly one [Frame]: a single leading type
// byte followed by the raw payload. There is no length prefix; the payload is
// the remainder of the message. Zero-length messages carry no type and are
// dropped without dispatch.
package protocol

import (
	"fmt"
)

// Type identifies the kind of a [Frame]. The seven known values are listed
// below; any other byte is an unknown type and is dropped by [Dispatch].
type Type byte

const (
	// TypeHandshake signals that the remote model is ready. Server→client.
	TypeHandshake Type = 0x00

	// TypeAudio carries one codec-encoded audio frame. Bidirectional.
	TypeAudio Type = 0x01

	// TypeText carries incremental UTF-8 text. Server→client.
	TypeText Type = 0x02

	// TypeControl carries a one-byte [ControlAction].
	TypeControl Type = 0x03

	// TypeMetadata carries a JSON object. Informational only.
	TypeMetadata Type = 0x04

	// TypeError carries a UTF-8 error message from the server.
	TypeError Type = 0x05

	// TypePing is a liveness probe. The receiver echoes a Ping with an empty
	// payload.
	TypePing Type = 0x06
)

// Known reports whether t is one of the seven protocol types.
func (t Type) Known() bool {
	return t <= TypePing
}

// String returns a lower-case name for t, or "unknown(0xNN)".
func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "handshake"
	case TypeAudio:
		return "audio"
	case TypeText:
		return "text"
	case TypeControl:
		return "control"
	case TypeMetadata:
		return "metadata"
	case TypeError:
		return "error"
	case TypePing:
		return "ping"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Frame is one type-tagged unit of the wire protocol.
type Frame struct {
	Type    Type
	Payload []byte
}

// Marshal returns the wire form of f: the type byte followed by the payload.
// The returned slice never aliases f.Payload.
func (f Frame) Marshal() []byte {
	b := make([]byte, 1+len(f.Payload))
	b[0] = byte(f.Type)
	copy(b[1:], f.Payload)
	return b
}

// Parse splits a transport message into a [Frame]. It returns false for a
// zero-length message. The returned payload aliases msg.
func Parse(msg []byte) (Frame, bool) {
	if len(msg) == 0 {
		return Frame{}, false
	}
	return Frame{Type: Type(msg[0]), Payload: msg[1:]}, true
}

// ── Constructors ───────────────────────────────────────────────────────────────

// AudioFrame wraps one encoded codec frame.
func AudioFrame(encoded []byte) Frame {
	return Frame{Type: TypeAudio, Payload: encoded}
}

// PingFrame returns a Ping with an empty payload. It is the only valid reply
// to an inbound Ping.
func PingFrame() Frame {
	return Frame{Type: TypePing}
}

// ControlFrame returns a Control frame for action. The client never sends
// control frames today; the constructor exists so tests and fake servers can
// build them.
func ControlFrame(action ControlAction) Frame {
	return Frame{Type: TypeControl, Payload: []byte{byte(action)}}
}

// TextFrame returns a Text frame carrying s.
func TextFrame(s string) Frame {
	return Frame{Type: TypeText, Payload: []byte(s)}
}

// ErrorFrame returns an Error frame carrying msg.
func ErrorFrame(msg string) Frame {
	return Frame{Type: TypeError, Payload: []byte(msg)}
}

// HandshakeFrame returns an empty Handshake frame.
func HandshakeFrame() Frame {
	return Frame{Type: TypeHandshake}
}

// ── Control actions ────────────────────────────────────────────────────────────

// ControlAction is the action code carried in the first payload byte of a
// Control frame.
type ControlAction byte

const (
	ControlStart   ControlAction = 0
	ControlEndTurn ControlAction = 1
	ControlPause   ControlAction = 2
	ControlRestart ControlAction = 3
)

// String returns the action name, or "unknown(n)" for codes outside the
// enumerated set.
func (a ControlAction) String() string {
	switch a {
	case ControlStart:
		return "start"
	case ControlEndTurn:
		return "endTurn"
	case ControlPause:
		return "pause"
	case ControlRestart:
		return "restart"
	default:
		return fmt.Sprintf("unknown(%d)", byte(a))
	}
}

// Valid reports whether a is one of the enumerated actions.
func (a ControlAction) Valid() bool {
	return a <= ControlRestart
}

// ParseControl extracts the action from a Control payload. An empty payload
// or an action outside the enumerated set is an error.
func ParseControl(payload []byte) (ControlAction, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("protocol: control frame has no action byte")
	}
	a := ControlAction(payload[0])
	if !a.Valid() {
		return a, fmt.Errorf("protocol: control action %s out of range", a)
	}
	return a, nil
}
