// Package audio defines the PCM buffer type and the device-facing interfaces
// used by the orbtalk streaming engine.
//
// The two device abstractions are:
//
//   - [Source]: a capture device that pushes fixed-size PCM buffers.
//   - [Output]: a playback device that accepts PCM buffers for sequential
//     output.
//
// Concrete implementations live in sub-packages (audio/portaudio for real
// hardware, audio/mock for tests). The interfaces are intentionally narrow so
// the session never depends on a specific audio backend.
package audio

import (
	"context"
	"errors"
	"time"
)

// The wire format is fixed: 24 kHz mono.
const (
	SampleRate = 24000
	Channels   = 1
)

// DefaultCaptureFrames is the number of samples per captured buffer (60 ms at
// 24 kHz, the largest Opus frame size).
const DefaultCaptureFrames = 1440

// ErrDeviceUnavailable is returned when an input or output device cannot be
// opened, either because access was denied or because no device exists.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// Buffer is a chunk of mono float32 PCM samples in the range [-1, 1] at
// [SampleRate]. Capture produces fixed-size buffers; decode may produce
// buffers of any length.
type Buffer []float32

// Duration returns the playback length of b at [SampleRate].
func (b Buffer) Duration() time.Duration {
	return time.Duration(len(b)) * time.Second / SampleRate
}

// Source is a capture device.
//
// Start opens the device and returns a channel that delivers buffers in
// capture order. The sequence is unbounded and cannot be restarted: once Stop
// has been called (or ctx is cancelled) the channel is closed and the Source
// must be discarded. If the device cannot be opened, Start returns an error
// wrapping [ErrDeviceUnavailable].
//
// Implementations must never block the device on a slow consumer; a buffer
// that cannot be delivered immediately is dropped.
type Source interface {
	Start(ctx context.Context) (<-chan Buffer, error)

	// Stop disconnects the device. It is idempotent.
	Stop() error
}

// Output is a playback device.
type Output interface {
	// Play hands buf to the device and blocks until the device has accepted
	// all of it. Play is never called concurrently.
	Play(ctx context.Context, buf Buffer) error

	// Close releases the device. It is idempotent.
	Close() error
}

// Flusher is implemented by outputs that hold back a partial device block
// between Play calls. Flush plays the held samples padded with silence; the
// playback sink calls it when its queue runs dry.
type Flusher interface {
	Flush(ctx context.Context) error
}
