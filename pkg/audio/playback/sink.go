// Package playback schedules decoded PCM buffers for gapless, strictly
// ordered output and exposes a spectral summary of what is being played.
//
// A [Sink] owns a FIFO queue. Enqueue appends at the tail; a single drain
// goroutine pops the head, hands it to the [audio.Output] and, once the
// output has accepted it, pops the next one. When the queue runs dry the
// drain goroutine exits and the sink returns to [StateIdle] until the next
// Enqueue.
package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// State is the drain state of a [Sink].
type State int

const (
	// StateIdle means nothing is scheduled for output.
	StateIdle State = iota

	// StateDraining means a drain goroutine owns the head of the queue.
	StateDraining
)

// String returns "idle" or "draining".
func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// Option configures a [Sink].
type Option func(*Sink)

// WithAnalyser replaces the default 256-point analyser.
func WithAnalyser(a *Analyser) Option {
	return func(s *Sink) { s.analyser = a }
}

// WithQueueHook registers fn to be called with +1 on every enqueue and -1 on
// every dequeue, for queue-depth metrics.
func WithQueueHook(fn func(delta int64)) Option {
	return func(s *Sink) { s.onQueue = fn }
}

// Sink is the playback sink. It is safe for concurrent use.
type Sink struct {
	out      audio.Output
	analyser *Analyser
	onQueue  func(int64)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  []audio.Buffer
	state  State
	closed bool
}

// New returns an idle sink that plays through out.
func New(out audio.Output, opts ...Option) *Sink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sink{
		out:      out,
		analyser: NewAnalyser(DefaultFFTSize),
		onQueue:  func(int64) {},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue appends buf to the queue and starts draining if the sink is idle.
// Empty buffers and buffers enqueued after Close are ignored.
func (s *Sink) Enqueue(buf audio.Buffer) {
	if len(buf) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, buf)
	s.onQueue(1)
	if s.state == StateIdle {
		s.state = StateDraining
		s.wg.Add(1)
		go s.drain()
	}
}

// drain plays queued buffers until the queue is empty or the sink closes.
// Each iteration is a fresh pop; there is exactly one drain goroutine while
// the state is StateDraining. An output that implements [audio.Flusher] is
// flushed once the queue runs dry, before the sink goes idle.
func (s *Sink) drain() {
	defer s.wg.Done()
	pending := false
	for {
		buf, ok := s.pop(pending)
		if !ok {
			return
		}
		if buf == nil {
			s.flush()
			pending = false
			continue
		}
		s.analyser.Write(buf)
		if err := s.out.Play(s.ctx, buf); err != nil {
			if s.ctx.Err() != nil {
				s.mu.Lock()
				s.state = StateIdle
				s.mu.Unlock()
				return
			}
			slog.Warn("playback: output failed, dropping buffer", "samples", len(buf), "err", err)
		}
		pending = true
	}
}

// pop returns the head of the queue. With the queue empty and output still
// pending it returns (nil, true) and keeps the sink draining, so a buffer
// enqueued during the flush is played after it.
func (s *Sink) pop(pending bool) (audio.Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (len(s.queue) == 0 && !pending) {
		s.state = StateIdle
		return nil, false
	}
	if len(s.queue) == 0 {
		return nil, true
	}
	buf := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.onQueue(-1)
	return buf, true
}

func (s *Sink) flush() {
	f, ok := s.out.(audio.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(s.ctx); err != nil && s.ctx.Err() == nil {
		slog.Warn("playback: flush failed", "err", err)
	}
}

// State returns the current drain state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of buffers waiting behind the one in flight.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Amplitude returns the output amplitude in [0, 1]. See [Analyser.Amplitude].
func (s *Sink) Amplitude() float64 { return s.analyser.Amplitude() }

// FrequencyData returns the output spectrum. See [Analyser.FrequencyData].
func (s *Sink) FrequencyData() []byte { return s.analyser.FrequencyData() }

// Close discards the queue, waits for the in-flight buffer to be abandoned
// and closes the output. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if n := len(s.queue); n > 0 {
		s.onQueue(-int64(n))
	}
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.analyser.Reset()
	return s.out.Close()
}
