// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	ch, _ := src.Start(ctx)
//	src.Push(audio.Buffer{0.1, 0.2})
//	buf := <-ch
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// Compile-time assertions.
var _ audio.Source = (*Source)(nil)
var _ audio.Output = (*Output)(nil)
var _ audio.Flusher = (*Output)(nil)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source]. Buffers passed to [Source.Push] are
// delivered on the channel returned by Start.
type Source struct {
	mu sync.Mutex

	// StartError, if non-nil, is returned by Start.
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	ch      chan audio.Buffer
	stopped bool
	started chan struct{}
}

func (s *Source) init() {
	if s.started == nil {
		s.started = make(chan struct{})
	}
}

// Start implements [audio.Source].
func (s *Source) Start(_ context.Context) (<-chan audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.CallCountStart++
	if s.StartError != nil {
		return nil, s.StartError
	}
	if s.ch != nil {
		return nil, errors.New("mock: source already started")
	}
	s.ch = make(chan audio.Buffer, 64)
	close(s.started)
	return s.ch, nil
}

// Started returns a channel that is closed once Start has succeeded.
func (s *Source) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.started
}

// Push delivers buf to the consumer. It reports false if the source is not
// running or the consumer's buffer is full.
func (s *Source) Push(buf audio.Buffer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil || s.stopped {
		return false
	}
	select {
	case s.ch <- buf:
		return true
	default:
		return false
	}
}

// Stop implements [audio.Source]. It closes the buffer channel once.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if s.ch != nil && !s.stopped {
		close(s.ch)
	}
	s.stopped = true
	return nil
}

// Stopped reports whether Stop has been called.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock [audio.Output]. It records every buffer passed to Play.
type Output struct {
	mu sync.Mutex

	// PlayDelay, if non-zero, makes every Play call block for this long
	// (or until its context is done) to simulate device write time.
	PlayDelay time.Duration

	// PlayError, if non-nil, is returned by Play after recording the buffer.
	PlayError error

	// Gate, if non-nil, makes every Play call wait for a receive from Gate
	// before returning, so tests can control completion order.
	Gate chan struct{}

	// CallCountClose records how many times Close was called.
	CallCountClose int

	played    []audio.Buffer
	flushedAt []int
	playing   int
	maxPar    int
}

// Play implements [audio.Output].
func (o *Output) Play(ctx context.Context, buf audio.Buffer) error {
	o.mu.Lock()
	o.played = append(o.played, buf)
	o.playing++
	if o.playing > o.maxPar {
		o.maxPar = o.playing
	}
	delay, gate, perr := o.PlayDelay, o.Gate, o.PlayError
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.playing--
		o.mu.Unlock()
	}()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return perr
}

// Flush implements [audio.Flusher]. It records how many buffers had been
// played when it was called.
func (o *Output) Flush(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushedAt = append(o.flushedAt, len(o.played))
	return nil
}

// Flushes returns, for every Flush call, the number of buffers played before
// it.
func (o *Output) Flushes() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.flushedAt...)
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return nil
}

// Played returns a copy of every buffer passed to Play, in call order.
func (o *Output) Played() []audio.Buffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]audio.Buffer, len(o.played))
	copy(out, o.played)
	return out
}

// MaxConcurrent returns the largest number of Play calls that were in flight
// at the same time.
func (o *Output) MaxConcurrent() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxPar
}
