// Package session drives one voice conversation over the framed protocol.
//
// A [Session] dials the transport, waits for the server handshake, then
// streams captured microphone audio out while decoding and playing the audio
// frames that come back. All state mutations run on a single event-loop
// goroutine fed by channels: inbound messages (from a reader goroutine),
// capture buffers, the inactivity watchdog, the transcript idle timer, and
// stop requests.
//
// Sessions are single-use. Once a session has closed, create a new one.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/orbtalk/internal/observe"
	"github.com/MrWong99/orbtalk/pkg/audio"
	"github.com/MrWong99/orbtalk/pkg/audio/codec"
	"github.com/MrWong99/orbtalk/pkg/audio/playback"
	"github.com/MrWong99/orbtalk/pkg/protocol"
	"github.com/MrWong99/orbtalk/pkg/transport"
)

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultInactivityTimeout = 30 * time.Second
	DefaultTranscriptIdle    = 5 * time.Second
	DefaultSendTimeout       = 5 * time.Second
)

var (
	// ErrInactivityTimeout is the session error after the watchdog fired.
	ErrInactivityTimeout = errors.New("session: inactivity timeout")

	// ErrAlreadyStarted is returned by a second call to [Session.Start].
	ErrAlreadyStarted = errors.New("session: already started")
)

// Config holds per-session settings.
type Config struct {
	// URL is the ws:// or wss:// endpoint to dial.
	URL string

	// InactivityTimeout closes the session when no non-empty message has
	// arrived for this long. Default: 30s.
	InactivityTimeout time.Duration

	// TranscriptIdle clears the transcript this long after the last text
	// frame. Default: 5s.
	TranscriptIdle time.Duration

	// SendTimeout bounds a single outbound write. Default: 5s.
	SendTimeout time.Duration

	// Codec configures both the capture encoder and the playback decoder.
	Codec codec.Config
}

// Devices opens the audio endpoints. Both are called at most once per
// session: Output during Start, Source when the handshake arrives.
type Devices struct {
	Source func() audio.Source
	Output func() (audio.Output, error)
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithListener sets the receiver of status and transcript updates.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// fatal records a teardown requested from inside a frame handler.
type fatal struct {
	cause cause
	err   error
}

// Session is one conversation. All exported methods are safe for concurrent
// use.
type Session struct {
	cfg      Config
	dialer   transport.Dialer
	devices  Devices
	metrics  *observe.Metrics
	listener Listener
	id       string

	fsm    *fsm.FSM
	fsmCtx context.Context

	mu         sync.Mutex
	started    bool
	status     Status
	err        error
	dialCancel context.CancelFunc

	sink atomic.Pointer[playback.Sink]

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	teardownOnce sync.Once
	wg           sync.WaitGroup

	// Owned by Start, then by the event loop.
	ctx        context.Context
	cancel     context.CancelFunc
	span       trace.Span
	logger     *slog.Logger
	startedAt  time.Time
	conn       transport.Conn
	encoder    *codec.Adapter
	decoder    *codec.Adapter
	source     audio.Source
	capture    <-chan audio.Buffer
	inbound    chan []byte
	readErr    error
	watchdog   *time.Timer
	transcript strings.Builder
	textTimer  *time.Timer
	fatal      *fatal
}

// New returns an idle session. dialer opens the transport and devices opens
// audio I/O; neither is touched until [Session.Start].
func New(cfg Config, dialer transport.Dialer, devices Devices, opts ...Option) *Session {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.TranscriptIdle <= 0 {
		cfg.TranscriptIdle = DefaultTranscriptIdle
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	s := &Session{
		cfg:      cfg,
		dialer:   dialer,
		devices:  devices,
		listener: nopListener{},
		id:       uuid.NewString(),
		fsmCtx:   context.Background(),
		status:   Status{Kind: KindIdle, Text: TextReady},
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	s.fsm = newStateMachine(s.onTransition)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.fsm.Current()) }

// Status returns the last status published to the listener.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns why the session closed: nil for a user stop or while still
// open, [ErrInactivityTimeout] for a watchdog expiry, and a wrapped transport
// or device error otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Amplitude returns the current playback loudness in [0, 1].
func (s *Session) Amplitude() float64 {
	if sink := s.sink.Load(); sink != nil {
		return sink.Amplitude()
	}
	return 0
}

// FrequencyData returns the current playback spectrum, one byte per bin. It
// returns silent bins before the playback sink exists.
func (s *Session) FrequencyData() []byte {
	if sink := s.sink.Load(); sink != nil {
		return sink.FrequencyData()
	}
	return make([]byte, playback.DefaultFFTSize/2)
}

// Start opens the playback device, dials the transport and starts the event
// loop. It returns once the transport is open; the session then waits for
// the server handshake before capturing. Cancelling ctx aborts the dial but
// does not end an established session; use [Session.Stop] for that.
//
// On failure the session is already torn down and Start returns the cause.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	dialCtx, dialCancel := context.WithCancel(ctx)
	s.dialCancel = dialCancel
	s.mu.Unlock()
	defer dialCancel()

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.ctx, s.span = observe.StartSpan(s.ctx, "session",
		trace.WithAttributes(attribute.String("session.id", s.id)),
	)
	s.fsmCtx = context.WithoutCancel(s.ctx)
	s.logger = observe.Logger(s.ctx).With(slog.String("session_id", s.id))
	s.startedAt = time.Now()

	s.fire(evStart)
	s.setStatus(Status{Kind: KindConnecting, Text: TextConnecting})

	s.encoder = s.newCodec()
	s.decoder = s.newCodec()

	out, err := s.devices.Output()
	if err != nil {
		err = fmt.Errorf("session: open output: %w", err)
		s.teardown(causeFailed, err)
		return err
	}
	s.sink.Store(playback.New(out, playback.WithQueueHook(func(delta int64) {
		s.metrics.PlaybackQueued.Add(s.fsmCtx, delta)
	})))

	s.logger.Info("session: dialing", slog.String("url", s.cfg.URL))
	conn, err := s.dialer.Dial(dialCtx, s.cfg.URL)
	if err != nil {
		err = fmt.Errorf("session: dial: %w", err)
		c := causeTransport
		if s.stopRequested() {
			c = causeUser
		}
		s.teardown(c, err)
		return err
	}
	s.conn = conn

	s.fire(evOpened)
	s.setStatus(Status{Kind: KindConnecting, Text: TextWaiting})
	s.watchdog = time.NewTimer(s.cfg.InactivityTimeout)
	s.textTimer = time.NewTimer(s.cfg.TranscriptIdle)
	stopTimer(s.textTimer)
	s.inbound = make(chan []byte)

	s.wg.Add(1)
	go s.read()
	go s.run()
	return nil
}

// Stop ends the session and waits for teardown to finish. It is safe to call
// in any state, more than once, and from any goroutine except a [Listener]
// callback. Stop on a session that was never started does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	started := s.started
	dialCancel := s.dialCancel
	s.mu.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	if dialCancel != nil {
		dialCancel()
	}
	<-s.done
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// newCodec creates and initialises one adapter, counting a fallback.
func (s *Session) newCodec() *codec.Adapter {
	a := codec.New(s.cfg.Codec)
	if a.Init() == codec.StateFallback {
		s.metrics.CodecFallbacks.Add(s.fsmCtx, 1)
	}
	return a
}

// setStatus records st and notifies the listener.
func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.listener.OnStatus(st)
}

// read pumps transport messages into the event loop until the transport
// fails or the session ends.
func (s *Session) read() {
	defer s.wg.Done()
	defer close(s.inbound)
	for {
		msg, err := s.conn.Receive(s.ctx)
		if err != nil {
			s.readErr = err
			return
		}
		select {
		case s.inbound <- msg:
		case <-s.ctx.Done():
			return
		}
	}
}

// run is the event loop. It owns every field below the "Owned by" marker on
// [Session] until teardown.
func (s *Session) run() {
	for {
		select {
		case <-s.stopCh:
			s.teardown(causeUser, nil)
			return

		case msg, ok := <-s.inbound:
			if !ok {
				err := s.readErr
				s.teardown(classifyReceive(err), fmt.Errorf("session: receive: %w", err))
				return
			}
			s.handleMessage(msg)

		case buf, ok := <-s.capture:
			if !ok {
				s.logger.Warn("session: capture ended")
				s.capture = nil
				continue
			}
			s.sendAudio(buf)

		case <-s.watchdog.C:
			s.metrics.WatchdogExpiries.Add(s.fsmCtx, 1)
			s.logger.Warn("session: no message within inactivity timeout",
				slog.Duration("timeout", s.cfg.InactivityTimeout),
			)
			s.teardown(causeTimeout, ErrInactivityTimeout)
			return

		case <-s.textTimer.C:
			s.transcript.Reset()
			s.listener.OnTranscript("")
		}

		if s.fatal != nil {
			s.teardown(s.fatal.cause, s.fatal.err)
			return
		}
	}
}

// fail schedules teardown after the current event. Only the first cause
// counts.
func (s *Session) fail(c cause, err error) {
	if s.fatal == nil {
		s.fatal = &fatal{cause: c, err: err}
	}
}

// send writes one frame with the configured timeout.
func (s *Session) send(f protocol.Frame) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SendTimeout)
	defer cancel()
	if err := s.conn.Send(ctx, f.Marshal()); err != nil {
		return fmt.Errorf("session: send %s: %w", f.Type, err)
	}
	s.metrics.RecordFrameSent(s.fsmCtx, f.Type.String())
	return nil
}

// sendAudio encodes one captured buffer and sends it as an Audio frame.
func (s *Session) sendAudio(buf audio.Buffer) {
	if s.State() != StateActive {
		s.metrics.RecordDrop(s.fsmCtx, observe.DropNotActive)
		return
	}
	start := time.Now()
	data, err := s.encoder.Encode(buf)
	s.metrics.EncodeDuration.Record(s.fsmCtx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordDrop(s.fsmCtx, observe.DropCodecError)
		s.logger.Debug("session: encode failed", slog.Any("err", err))
		return
	}
	if len(data) == 0 {
		s.metrics.RecordDrop(s.fsmCtx, observe.DropEncodeNoop)
		return
	}
	if err := s.send(protocol.AudioFrame(data)); err != nil {
		s.fail(causeTransport, err)
	}
}

// teardown releases every resource exactly once and publishes the final
// status. It runs on the event loop, or on the Start goroutine when setup
// fails before the loop exists.
func (s *Session) teardown(c cause, err error) {
	s.teardownOnce.Do(func() {
		s.fire(evClose)

		stopTimer(s.watchdog)
		stopTimer(s.textTimer)

		if s.source != nil {
			if e := s.source.Stop(); e != nil {
				s.logger.Warn("session: stop capture", slog.Any("err", e))
			}
			if s.capture != nil {
				audio.Drain(s.capture)
				s.capture = nil
			}
		}
		for _, a := range []*codec.Adapter{s.encoder, s.decoder} {
			if a != nil {
				_ = a.Close()
			}
		}
		if s.conn != nil {
			if e := s.conn.Close(); e != nil {
				s.logger.Debug("session: close transport", slog.Any("err", e))
			}
		}
		s.cancel()
		s.wg.Wait()
		if sink := s.sink.Load(); sink != nil {
			if e := sink.Close(); e != nil {
				s.logger.Debug("session: close playback", slog.Any("err", e))
			}
		}

		s.transcript.Reset()
		s.listener.OnTranscript("")

		if c == causeUser {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.setStatus(c.finalStatus(err))

		s.fire(evClosed)
		s.metrics.RecordSession(s.fsmCtx, time.Since(s.startedAt), c.String())

		attrs := []any{slog.String("reason", c.String())}
		if err != nil {
			attrs = append(attrs, slog.Any("err", err))
			s.span.SetStatus(codes.Error, err.Error())
		}
		s.logger.Info("session: closed", attrs...)
		s.span.End()
		close(s.done)
	})
}

// resetTimer rearms t for d, discarding a pending expiry.
func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}

// stopTimer stops t and drains its channel. A nil t is ignored.
func stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
