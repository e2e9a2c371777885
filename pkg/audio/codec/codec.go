// Package codec provides the codec adapter used on both directions of the
// audio path.
//
// An [Adapter] exposes one uniform Encode/Decode interface over either an Opus
// codec (libopus via gopus) or a raw 16-bit PCM fallback. Initialisation never
// fails: when Opus cannot be created the adapter logs a warning and switches
// to [StateFallback] for the rest of its life.
//
// Encode and Decode follow a "nil means drop" rule: a nil result with a nil
// error means the codec produced no output for this input and the caller must
// not forward anything.
package codec

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// ErrClosed is returned by Encode and Decode after [Adapter.Close].
var ErrClosed = errors.New("codec: adapter closed")

// errOpusUnavailable is returned by the Opus constructor in builds without
// cgo.
var errOpusUnavailable = errors.New("codec: opus support not compiled in")

// State is the lifecycle state of an [Adapter].
type State int

const (
	// StateUninitialized is the state before [Adapter.Init].
	StateUninitialized State = iota

	// StateReady means the Opus codec is in use.
	StateReady

	// StateFallback means raw PCM16 is in use. It is terminal.
	StateFallback
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Kind selects the preferred codec.
type Kind string

const (
	KindOpus  Kind = "opus"
	KindPCM16 Kind = "pcm16"
)

// IsValid reports whether k is a recognised codec kind.
func (k Kind) IsValid() bool {
	return k == KindOpus || k == KindPCM16
}

// Config configures an [Adapter]. Zero values select the defaults.
type Config struct {
	// Kind is the preferred codec. Defaults to [KindOpus].
	Kind Kind

	// SampleRate in Hz. Defaults to [audio.SampleRate].
	SampleRate int

	// FrameSize is the number of samples per Opus frame. Defaults to
	// [audio.DefaultCaptureFrames]. Must satisfy [ValidOpusFrameSize].
	FrameSize int

	// Bitrate is the Opus target bitrate in bit/s. Defaults to 64000.
	Bitrate int
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindOpus
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.SampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultCaptureFrames
	}
	if c.Bitrate <= 0 {
		c.Bitrate = 64000
	}
	return c
}

// ValidOpusFrameSize reports whether n samples at rate Hz is one of the frame
// durations Opus accepts (2.5, 5, 10, 20, 40 or 60 ms).
func ValidOpusFrameSize(rate, n int) bool {
	// Durations in tenths of a millisecond.
	for _, d := range []int{25, 50, 100, 200, 400, 600} {
		if rate*d%10000 == 0 && rate*d/10000 == n {
			return true
		}
	}
	return false
}

// frameCodec encodes and decodes whole Opus frames of 16-bit samples.
type frameCodec interface {
	encode(pcm []int16) ([]byte, error)
	decode(packet []byte) ([]int16, error)
}

// Adapter is a codec adapter. It is safe for concurrent use, although the
// session only ever drives one direction per instance.
type Adapter struct {
	cfg     Config
	newOpus func(Config) (frameCodec, error)

	mu       sync.Mutex
	state    State
	opus     frameCodec
	residual audio.Buffer
	closed   bool
}

// New returns an uninitialised adapter. Call [Adapter.Init] before use.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:     cfg.withDefaults(),
		newOpus: newOpusCodec,
	}
}

// Init creates the codec. It never fails: if Opus is unavailable the adapter
// logs a warning and enters [StateFallback]. Calling Init again returns the
// current state.
func (a *Adapter) Init() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateUninitialized || a.closed {
		return a.state
	}
	if a.cfg.Kind == KindPCM16 {
		slog.Info("codec: raw PCM16 configured")
		a.state = StateFallback
		return a.state
	}

	c, err := a.newOpus(a.cfg)
	if err != nil {
		slog.Warn("codec: opus not available, falling back to raw PCM16", "err", err)
		a.state = StateFallback
		return a.state
	}
	a.opus = c
	a.state = StateReady
	return a.state
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Encode compresses pcm into one frame payload. It returns (nil, nil) when
// there is nothing to send for this input.
//
// In Opus mode, samples that do not fill a whole frame are kept and prefixed
// to the next call. If a single call completes more than one frame, only the
// newest frame is encoded and the older ones are discarded.
func (a *Adapter) Encode(pcm audio.Buffer) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	switch a.state {
	case StateFallback:
		if len(pcm) == 0 {
			return nil, nil
		}
		return audio.FloatToPCM16(pcm), nil
	case StateReady:
		return a.encodeOpus(pcm)
	default:
		return nil, nil
	}
}

func (a *Adapter) encodeOpus(pcm audio.Buffer) ([]byte, error) {
	fs := a.cfg.FrameSize
	a.residual = append(a.residual, pcm...)
	whole := len(a.residual) / fs
	if whole == 0 {
		return nil, nil
	}
	if whole > 1 {
		slog.Debug("codec: discarding stale opus frames", "frames", whole-1)
	}

	start := (whole - 1) * fs
	packet, err := a.opus.encode(audio.FloatToInt16s(a.residual[start : start+fs]))
	a.residual = append(a.residual[:0], a.residual[whole*fs:]...)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	if len(packet) == 0 {
		return nil, nil
	}
	return packet, nil
}

// Decode expands one frame payload into PCM. It returns (nil, nil) when the
// payload carries no samples.
func (a *Adapter) Decode(data []byte) (audio.Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	switch a.state {
	case StateFallback:
		if len(data) < 2 {
			return nil, nil
		}
		return audio.PCM16ToFloat(data), nil
	case StateReady:
		if len(data) == 0 {
			return nil, nil
		}
		pcm, err := a.opus.decode(data)
		if err != nil {
			return nil, fmt.Errorf("codec: decode: %w", err)
		}
		if len(pcm) == 0 {
			return nil, nil
		}
		return audio.Int16sToFloat(pcm), nil
	default:
		return nil, nil
	}
}

// Close releases the codec. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.opus = nil
	a.residual = nil
	return nil
}
