package portaudio

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

func TestDeviceString(t *testing.T) {
	t.Parallel()
	d := Device{
		Index:             3,
		Name:              "USB Mic",
		HostAPI:           "ALSA",
		MaxInputChannels:  1,
		DefaultSampleRate: 48000,
		IsDefaultInput:    true,
	}
	got := d.String()
	for _, want := range []string{"3: USB Mic", "ALSA", "in=1 out=0", "48000 Hz", "[default input]"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "default output") {
		t.Errorf("String() = %q marks a non-default output", got)
	}
}

func TestDeviceUnavailableWraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("no such device")
	err := deviceUnavailable("open input", cause)
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Error("error does not wrap ErrDeviceUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("error does not wrap the cause")
	}
}

func TestBuildOptions(t *testing.T) {
	t.Parallel()
	var dropped int
	o := buildOptions(1440, []Option{
		WithDevice("pulse"),
		WithFrames(0),
		WithDropHook(func() { dropped++ }),
	})
	if o.device != "pulse" {
		t.Errorf("device = %q", o.device)
	}
	if o.frames != 1440 {
		t.Errorf("frames = %d, want default kept for non-positive override", o.frames)
	}
	o.onDrop()
	if dropped != 1 {
		t.Error("drop hook not installed")
	}
}

func TestChunker_CarriesPartialBlockAcrossBuffers(t *testing.T) {
	t.Parallel()
	c := chunker{block: make([]float32, 4)}
	var written [][]float32
	write := func() error {
		written = append(written, append([]float32(nil), c.block...))
		return nil
	}

	if err := c.push([]float32{1, 2, 3, 4, 5, 6}, write); err != nil {
		t.Fatal(err)
	}
	if err := c.push([]float32{7, 8, 9}, write); err != nil {
		t.Fatal(err)
	}
	if err := c.flush(write); err != nil {
		t.Fatal(err)
	}
	if err := c.flush(write); err != nil {
		t.Fatal(err)
	}

	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 0, 0, 0}}
	if len(written) != len(want) {
		t.Fatalf("wrote %d blocks %v, want %v", len(written), written, want)
	}
	for i := range want {
		for j := range want[i] {
			if written[i][j] != want[i][j] {
				t.Fatalf("block %d = %v, want %v", i, written[i], want[i])
			}
		}
	}
}

func TestChunker_WriteErrorStopsPush(t *testing.T) {
	t.Parallel()
	c := chunker{block: make([]float32, 2)}
	calls := 0
	err := c.push([]float32{1, 2, 3, 4, 5}, func() error {
		calls++
		return errors.New("device gone")
	})
	if err == nil || calls != 1 {
		t.Errorf("push = %v after %d writes, want error after 1", err, calls)
	}
}
