package playback

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

// Analyser defaults, matching a browser AnalyserNode configured with
// fftSize 256.
const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Analyser computes a rolling spectral summary of the most recent output
// samples. Write is called with every buffer handed to the output; the
// summaries are computed on demand, once per visualiser tick.
type Analyser struct {
	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	fft    *fourier.FFT
	window []float64

	mu       sync.Mutex
	ring     []float32 // last size samples, oldest first after rotation
	pos      int
	smoothed []float64
	scratch  []float64
	coeffs   []complex128
}

// NewAnalyser returns an analyser over the last size samples. size must be a
// power of two; it falls back to [DefaultFFTSize] otherwise.
func NewAnalyser(size int) *Analyser {
	if size < 32 || size&(size-1) != 0 {
		size = DefaultFFTSize
	}
	a := &Analyser{
		size:      size,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
		fft:       fourier.NewFFT(size),
		window:    blackman(size),
		ring:      make([]float32, size),
		smoothed:  make([]float64, size/2),
		scratch:   make([]float64, size),
	}
	return a
}

// Bins returns the number of frequency bins, half the FFT size.
func (a *Analyser) Bins() int { return a.size / 2 }

// Write appends buf to the rolling window.
func (a *Analyser) Write(buf audio.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(buf) >= a.size {
		copy(a.ring, buf[len(buf)-a.size:])
		a.pos = 0
		return
	}
	for _, s := range buf {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % a.size
	}
}

// Reset clears the window and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// FrequencyData returns one byte per bin. Each call advances the smoothing
// filter, so it should be called at the visualiser's tick rate.
func (a *Analyser) FrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.size {
		a.scratch[i] = float64(a.ring[(a.pos+i)%a.size]) * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	out := make([]byte, len(a.smoothed))
	scale := 255 / (a.maxDB - a.minDB)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := scale * (db - a.minDB)
		switch {
		case v <= 0 || math.IsNaN(v):
			out[k] = 0
		case v >= 255:
			out[k] = 255
		default:
			out[k] = byte(v)
		}
	}
	return out
}

// Amplitude returns the mean of the frequency bins scaled to [0, 1]. It
// advances the smoothing filter like [Analyser.FrequencyData].
func (a *Analyser) Amplitude() float64 {
	return Amplitude(a.FrequencyData())
}

// Amplitude reduces frequency bins to a scalar in [0, 1].
func Amplitude(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
