package session

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// State is a session lifecycle state.
type State string

// Session states. A session moves strictly forward through them.
const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateAwaitingHandshake State = "awaiting_handshake"
	StateActive            State = "active"
	StateClosing           State = "closing"
	StateClosed            State = "closed"
)

// FSM event names.
const (
	evStart     = "start"
	evOpened    = "opened"
	evHandshake = "handshake"
	evClose     = "close"
	evClosed    = "closed"
)

// newStateMachine builds the lifecycle FSM. onTransition runs after every
// successful transition; it must not fire further events.
func newStateMachine(onTransition func(ctx context.Context, from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evStart, Src: []string{string(StateIdle)}, Dst: string(StateConnecting)},
			{Name: evOpened, Src: []string{string(StateConnecting)}, Dst: string(StateAwaitingHandshake)},
			{Name: evHandshake, Src: []string{string(StateAwaitingHandshake)}, Dst: string(StateActive)},
			{
				Name: evClose,
				Src:  []string{string(StateConnecting), string(StateAwaitingHandshake), string(StateActive)},
				Dst:  string(StateClosing),
			},
			{Name: evClosed, Src: []string{string(StateClosing)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				onTransition(ctx, State(e.Src), State(e.Dst))
			},
		},
	)
}

// onTransition keeps the active-session gauge and the span in step with the
// lifecycle.
func (s *Session) onTransition(ctx context.Context, from, to State) {
	switch {
	case to == StateActive:
		s.metrics.ActiveSessions.Add(ctx, 1)
	case from == StateActive:
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	if s.span != nil {
		s.span.AddEvent(string(to))
	}
	s.logger.Debug("session: state change",
		slog.String("from", string(from)),
		slog.String("state", string(to)),
	)
}

// fire triggers event and logs a rejected transition. Rejections only happen
// on teardown paths that race with a transition already taken.
func (s *Session) fire(event string) {
	if err := s.fsm.Event(s.fsmCtx, event); err != nil {
		s.logger.Debug("session: transition rejected",
			slog.String("event", event),
			slog.String("state", s.fsm.Current()),
			slog.Any("err", err),
		)
	}
}
