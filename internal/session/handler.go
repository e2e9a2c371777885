package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/orbtalk/internal/observe"
	"github.com/MrWong99/orbtalk/pkg/protocol"
)

// handleMessage processes one inbound transport message on the event loop.
// Any non-empty message counts as liveness, whatever its type.
func (s *Session) handleMessage(msg []byte) {
	f, ok := protocol.Parse(msg)
	if !ok {
		s.metrics.RecordDrop(s.fsmCtx, observe.DropEmptyMessage)
		return
	}
	resetTimer(s.watchdog, s.cfg.InactivityTimeout)

	typ := f.Type.String()
	if !f.Type.Known() {
		typ = "unknown"
	}
	s.metrics.RecordFrameReceived(s.fsmCtx, typ)
	protocol.DispatchFrame(f, (*frameHandler)(s))
}

// frameHandler is the per-type view of a Session used for dispatch. Its
// methods run on the event loop.
type frameHandler Session

var _ protocol.Handler = (*frameHandler)(nil)

func (h *frameHandler) session() *Session { return (*Session)(h) }

func (h *frameHandler) OnHandshake() {
	s := h.session()
	if s.State() != StateAwaitingHandshake {
		s.logger.Debug("session: ignoring repeated handshake", slog.String("state", string(s.State())))
		return
	}
	s.fire(evHandshake)
	s.setStatus(Status{Kind: KindConnected, Text: TextConnected})

	s.source = s.devices.Source()
	ch, err := s.source.Start(s.ctx)
	if err != nil {
		s.fail(causeFailed, fmt.Errorf("session: start capture: %w", err))
		return
	}
	s.capture = ch
	s.logger.Info("session: conversation active")
}

func (h *frameHandler) OnAudio(payload []byte) {
	s := h.session()
	start := time.Now()
	buf, err := s.decoder.Decode(payload)
	s.metrics.DecodeDuration.Record(s.fsmCtx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordDrop(s.fsmCtx, observe.DropCodecError)
		s.logger.Debug("session: decode failed", slog.Any("err", err))
		return
	}
	if len(buf) == 0 {
		return
	}
	if sink := s.sink.Load(); sink != nil {
		sink.Enqueue(buf)
	}
}

func (h *frameHandler) OnText(text string) {
	s := h.session()
	if strings.TrimSpace(text) == "" {
		return
	}
	s.transcript.WriteString(text)
	resetTimer(s.textTimer, s.cfg.TranscriptIdle)
	s.listener.OnTranscript(s.transcript.String())
}

func (h *frameHandler) OnControl(action protocol.ControlAction) {
	h.session().logger.Info("session: control", slog.String("action", action.String()))
}

func (h *frameHandler) OnMetadata(meta map[string]any) {
	h.session().logger.Debug("session: metadata", slog.Any("metadata", meta))
}

func (h *frameHandler) OnError(msg string) {
	s := h.session()
	s.logger.Warn("session: server error", slog.String("message", msg))
	s.setStatus(Status{Kind: KindError, Text: msg})
}

func (h *frameHandler) OnPing() {
	s := h.session()
	if err := s.send(protocol.PingFrame()); err != nil {
		s.fail(causeTransport, err)
	}
}

func (h *frameHandler) OnUnknown(t protocol.Type, payload []byte) {
	s := h.session()
	s.metrics.RecordDrop(s.fsmCtx, observe.DropUnknownType)
	s.logger.Debug("session: unknown frame type",
		slog.String("type", t.String()),
		slog.Int("len", len(payload)),
	)
}

func (h *frameHandler) OnMalformed(t protocol.Type, err error) {
	s := h.session()
	s.metrics.RecordDrop(s.fsmCtx, observe.DropMalformed)
	s.logger.Warn("session: malformed frame",
		slog.String("type", t.String()),
		slog.Any("err", err),
	)
}
