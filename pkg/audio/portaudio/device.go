//go:build cgo

package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// Compile-time assertions.
var _ audio.Source = (*Mic)(nil)
var _ audio.Output = (*Speaker)(nil)
var _ audio.Flusher = (*Speaker)(nil)

// Initialize initialises PortAudio and returns a function that terminates it.
func Initialize() (terminate func() error, err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, deviceUnavailable("initialize", err)
	}
	return portaudio.Terminate, nil
}

// Devices lists every device PortAudio can see.
func Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		d := Device{
			Index:             info.Index,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    defIn != nil && defIn.Index == info.Index,
			IsDefaultOutput:   defOut != nil && defOut.Index == info.Index,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		out = append(out, d)
	}
	return out, nil
}

// findDevice returns the named device, or the default input or output device
// when name is empty.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		if (input && info.MaxInputChannels > 0) || (!input && info.MaxOutputChannels > 0) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("no device named %q", name)
}

// ─── Mic ──────────────────────────────────────────────────────────────────────

// Mic captures mono audio from an input device.
type Mic struct {
	opts options

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
}

// NewMic returns a stopped microphone source.
func NewMic(opts ...Option) *Mic {
	return &Mic{
		opts: buildOptions(audio.DefaultCaptureFrames, opts),
		done: make(chan struct{}),
	}
}

// Start opens the device and begins delivering buffers. It fails with an
// error wrapping [audio.ErrDeviceUnavailable] if the device cannot be opened.
// A Mic cannot be restarted.
func (m *Mic) Start(ctx context.Context) (<-chan audio.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil, errors.New("portaudio: mic already started")
	}
	m.started = true

	dev, err := findDevice(m.opts.device, true)
	if err != nil {
		return nil, deviceUnavailable("input device", err)
	}
	p := portaudio.LowLatencyParameters(dev, nil)
	p.Input.Channels = audio.Channels
	p.SampleRate = audio.SampleRate
	p.FramesPerBuffer = m.opts.frames

	buf := make([]float32, m.opts.frames)
	stream, err := portaudio.OpenStream(p, buf)
	if err != nil {
		return nil, deviceUnavailable("open input", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, deviceUnavailable("start input", err)
	}
	slog.Debug("portaudio: capture started", "device", dev.Name, "frames", m.opts.frames)

	ch := make(chan audio.Buffer, 8)
	m.wg.Add(1)
	go m.readLoop(ctx, stream, buf, ch)
	return ch, nil
}

// readLoop owns stream: it closes it and ch on exit.
func (m *Mic) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, ch chan<- audio.Buffer) {
	defer m.wg.Done()
	defer close(ch)
	defer func() {
		if err := stream.Stop(); err != nil {
			slog.Debug("portaudio: stop input", "err", err)
		}
		stream.Close()
	}()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			slog.Warn("portaudio: capture read failed", "err", err)
			return
		}
		out := make(audio.Buffer, len(buf))
		copy(out, buf)

		select {
		case ch <- out:
		case <-m.done:
			return
		default:
			m.opts.onDrop()
		}
	}
}

// Stop ends capture and closes the device. It is safe to call more than once.
func (m *Mic) Stop() error {
	m.stop.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker plays mono audio on an output device.
type Speaker struct {
	stream *portaudio.Stream
	chunks chunker

	mu     sync.Mutex
	closed bool
}

// NewSpeaker opens and starts an output stream. It fails with an error
// wrapping [audio.ErrDeviceUnavailable] if the device cannot be opened.
func NewSpeaker(opts ...Option) (*Speaker, error) {
	o := buildOptions(DefaultOutputFrames, opts)
	dev, err := findDevice(o.device, false)
	if err != nil {
		return nil, deviceUnavailable("output device", err)
	}
	p := portaudio.LowLatencyParameters(nil, dev)
	p.Output.Channels = audio.Channels
	p.SampleRate = audio.SampleRate
	p.FramesPerBuffer = o.frames

	buf := make([]float32, o.frames)
	stream, err := portaudio.OpenStream(p, buf)
	if err != nil {
		return nil, deviceUnavailable("open output", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, deviceUnavailable("start output", err)
	}
	return &Speaker{stream: stream, chunks: chunker{block: buf}}, nil
}

// Play writes pcm to the device in fixed-size chunks and returns once every
// whole chunk has been accepted. A trailing partial chunk is held back and
// played ahead of the next buffer, or padded with silence by [Speaker.Flush].
func (s *Speaker) Play(ctx context.Context, pcm audio.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("portaudio: speaker closed")
	}
	return s.chunks.push(pcm, func() error { return s.write(ctx) })
}

// Flush plays any held-back samples, padded with silence to a whole chunk.
func (s *Speaker) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.chunks.flush(func() error { return s.write(ctx) })
}

func (s *Speaker) write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return fmt.Errorf("portaudio: write: %w", err)
	}
	return nil
}

// Close stops and closes the output stream. It is safe to call more than
// once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		slog.Debug("portaudio: stop output", "err", err)
	}
	return s.stream.Close()
}
