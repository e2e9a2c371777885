package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler receives dispatched frames. Implementations are called
// synchronously from [Dispatch] in message order.
type Handler interface {
	OnHandshake()
	OnAudio(payload []byte)
	OnText(text string)
	OnControl(action ControlAction)
	OnMetadata(meta map[string]any)
	OnError(msg string)
	OnPing()

	// OnUnknown is called for frames whose type byte is not one of the seven
	// known values. It is a normal case, not a failure.
	OnUnknown(t Type, payload []byte)

	// OnMalformed is called instead of OnControl or OnMetadata when the
	// payload cannot be parsed. The frame is dropped.
	OnMalformed(t Type, err error)
}

// Dispatch parses msg and routes the resulting frame to h. It returns false
// if msg was empty and nothing was dispatched.
//
// Malformed Control and Metadata payloads are logged and reported through
// OnMalformed; they never reach OnControl or OnMetadata.
func Dispatch(msg []byte, h Handler) bool {
	f, ok := Parse(msg)
	if !ok {
		return false
	}
	DispatchFrame(f, h)
	return true
}

// DispatchFrame routes an already parsed frame to h.
func DispatchFrame(f Frame, h Handler) {
	switch f.Type {
	case TypeHandshake:
		h.OnHandshake()
	case TypeAudio:
		h.OnAudio(f.Payload)
	case TypeText:
		h.OnText(string(f.Payload))
	case TypeControl:
		action, err := ParseControl(f.Payload)
		if err != nil {
			slog.Warn("protocol: dropping control frame", "err", err)
			h.OnMalformed(f.Type, err)
			return
		}
		h.OnControl(action)
	case TypeMetadata:
		meta, err := ParseMetadata(f.Payload)
		if err != nil {
			slog.Warn("protocol: dropping metadata frame", "err", err)
			h.OnMalformed(f.Type, err)
			return
		}
		h.OnMetadata(meta)
	case TypeError:
		h.OnError(string(f.Payload))
	case TypePing:
		h.OnPing()
	default:
		slog.Debug("protocol: unknown frame type", "type", f.Type, "len", len(f.Payload))
		h.OnUnknown(f.Type, f.Payload)
	}
}

// ParseMetadata decodes a Metadata payload. The payload must be a JSON object.
func ParseMetadata(payload []byte) (map[string]any, error) {
	var meta map[string]any
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("protocol: metadata: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("protocol: metadata: not a JSON object")
	}
	return meta, nil
}

// ── HandlerFuncs ───────────────────────────────────────────────────────────────

// HandlerFuncs adapts optional functions to [Handler]. Nil fields ignore the
// corresponding frame.
type HandlerFuncs struct {
	Handshake func()
	Audio     func(payload []byte)
	Text      func(text string)
	Control   func(action ControlAction)
	Metadata  func(meta map[string]any)
	Error     func(msg string)
	Ping      func()
	Unknown   func(t Type, payload []byte)
	Malformed func(t Type, err error)
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) OnHandshake() {
	if h.Handshake != nil {
		h.Handshake()
	}
}

func (h HandlerFuncs) OnAudio(payload []byte) {
	if h.Audio != nil {
		h.Audio(payload)
	}
}

func (h HandlerFuncs) OnText(text string) {
	if h.Text != nil {
		h.Text(text)
	}
}

func (h HandlerFuncs) OnControl(action ControlAction) {
	if h.Control != nil {
		h.Control(action)
	}
}

func (h HandlerFuncs) OnMetadata(meta map[string]any) {
	if h.Metadata != nil {
		h.Metadata(meta)
	}
}

func (h HandlerFuncs) OnError(msg string) {
	if h.Error != nil {
		h.Error(msg)
	}
}

func (h HandlerFuncs) OnPing() {
	if h.Ping != nil {
		h.Ping()
	}
}

func (h HandlerFuncs) OnUnknown(t Type, payload []byte) {
	if h.Unknown != nil {
		h.Unknown(t, payload)
	}
}

func (h HandlerFuncs) OnMalformed(t Type, err error) {
	if h.Malformed != nil {
		h.Malformed(t, err)
	}
}
