// Package portaudio implements [audio.Source] and [audio.Output] on the
// local sound card through PortAudio (github.com/gordonklaus/portaudio).
//
// Streams are mono at [audio.SampleRate] and use blocking reads and writes.
// The library must be initialised once per process with [Initialize]; the
// returned function terminates it.
//
// Builds without cgo get stubs that report [audio.ErrDeviceUnavailable].
package portaudio

import (
	"fmt"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// DefaultOutputFrames is the write chunk size of a [Speaker] (20 ms at
// 24 kHz). A trailing partial chunk is zero-padded.
const DefaultOutputFrames = 480

// Device describes one PortAudio device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// String formats d on one line for device listings.
func (d Device) String() string {
	marker := ""
	if d.IsDefaultInput {
		marker += " [default input]"
	}
	if d.IsDefaultOutput {
		marker += " [default output]"
	}
	return fmt.Sprintf("%d: %s (%s, in=%d out=%d, %.0f Hz)%s",
		d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, marker)
}

// ─── Options ──────────────────────────────────────────────────────────────────

type options struct {
	device string
	frames int
	onDrop func()
}

// Option configures a [Mic] or [Speaker].
type Option func(*options)

// WithDevice selects a device by exact name. Empty selects the system default.
func WithDevice(name string) Option {
	return func(o *options) { o.device = name }
}

// WithFrames sets the samples per read (Mic) or per write (Speaker).
func WithFrames(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.frames = n
		}
	}
}

// WithDropHook registers fn to be called whenever the Mic drops a captured
// buffer because its consumer is lagging.
func WithDropHook(fn func()) Option {
	return func(o *options) { o.onDrop = fn }
}

func buildOptions(defaultFrames int, opts []Option) options {
	o := options{frames: defaultFrames, onDrop: func() {}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func deviceUnavailable(op string, err error) error {
	return fmt.Errorf("portaudio: %s: %w: %w", op, audio.ErrDeviceUnavailable, err)
}

// ─── Chunker ──────────────────────────────────────────────────────────────────

// chunker packs samples of any length into the fixed-size block a blocking
// output stream writes. Samples that do not fill a block stay in it until
// the next push, so consecutive buffers play back to back.
type chunker struct {
	block []float32
	fill  int
}

// push copies pcm into the block and calls write each time the block is
// full.
func (c *chunker) push(pcm []float32, write func() error) error {
	for len(pcm) > 0 {
		n := copy(c.block[c.fill:], pcm)
		c.fill += n
		pcm = pcm[n:]
		if c.fill < len(c.block) {
			return nil
		}
		c.fill = 0
		if err := write(); err != nil {
			return err
		}
	}
	return nil
}

// flush pads a partly filled block with silence and writes it.
func (c *chunker) flush(write func() error) error {
	if c.fill == 0 {
		return nil
	}
	clear(c.block[c.fill:])
	c.fill = 0
	return write()
}
