// Package tui renders the client's status, live transcript and output level
// to a terminal with lipgloss.
//
// A [Renderer] implements session.Listener, so a session pushes status and
// transcript updates into it directly. The level meter is pulled: on every
// tick [Renderer.Run] samples the current [Visualiser], whether or not audio
// is playing.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/orbtalk/internal/session"
)

// DefaultInterval is the redraw period (about 30 frames per second).
const DefaultInterval = 33 * time.Millisecond

// DefaultWidth is the frame width in terminal cells.
const DefaultWidth = 64

// Visualiser exposes playback levels.
type Visualiser interface {
	Amplitude() float64
	FrequencyData() []byte
}

var _ session.Listener = (*Renderer)(nil)

// ─── Styles ───────────────────────────────────────────────────────────────────

// Theme defines the colour scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	OK      lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is the built-in colour scheme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#7aa2f7"),
	Dim:     lipgloss.Color("#6e7681"),
	OK:      lipgloss.Color("#00ff9f"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds the styles derived from a [Theme].
type Styles struct {
	Title      lipgloss.Style
	Border     lipgloss.Style
	Idle       lipgloss.Style
	Connecting lipgloss.Style
	Connected  lipgloss.Style
	Error      lipgloss.Style
	Transcript lipgloss.Style
	Meter      lipgloss.Style
	Help       lipgloss.Style
}

// NewStyles creates styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:     lipgloss.NewStyle().Foreground(t.Primary),
		Idle:       lipgloss.NewStyle().Foreground(t.Dim),
		Connecting: lipgloss.NewStyle().Foreground(t.Primary),
		Connected:  lipgloss.NewStyle().Bold(true).Foreground(t.OK),
		Error:      lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Transcript: lipgloss.NewStyle(),
		Meter:      lipgloss.NewStyle().Foreground(t.OK),
		Help:       lipgloss.NewStyle().Foreground(t.Dim),
	}
}

func (s Styles) status(k session.StatusKind) lipgloss.Style {
	switch k {
	case session.KindConnecting:
		return s.Connecting
	case session.KindConnected:
		return s.Connected
	case session.KindError:
		return s.Error
	default:
		return s.Idle
	}
}

// ─── Renderer ─────────────────────────────────────────────────────────────────

// Option configures a [Renderer].
type Option func(*Renderer)

// WithMeter turns the level meter on or off. Default: on.
func WithMeter(on bool) Option {
	return func(r *Renderer) { r.meter.Store(on) }
}

// WithWidth sets the frame width. Values below 24 are ignored.
func WithWidth(n int) Option {
	return func(r *Renderer) {
		if n >= 24 {
			r.width = n
		}
	}
}

// WithTheme sets the colour scheme.
func WithTheme(t Theme) Option {
	return func(r *Renderer) { r.styles = NewStyles(t) }
}

// Renderer draws the client frame. All methods are safe for concurrent use.
type Renderer struct {
	out    io.Writer
	styles Styles
	width  int
	title  string
	meter  atomic.Bool

	mu         sync.Mutex
	status     session.Status
	transcript string
	vis        func() Visualiser
	drawn      int
}

// New returns a renderer writing to out.
func New(out io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		out:    out,
		styles: NewStyles(DefaultTheme),
		width:  DefaultWidth,
		title:  "orbtalk",
		status: session.Status{Kind: session.KindIdle, Text: session.TextReady},
	}
	r.meter.Store(true)
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnStatus implements session.Listener.
func (r *Renderer) OnStatus(s session.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

// OnTranscript implements session.Listener.
func (r *Renderer) OnTranscript(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = text
}

// SetMeter turns the level meter on or off.
func (r *Renderer) SetMeter(on bool) { r.meter.Store(on) }

// SetVisualiser sets the function that returns the current level source. It
// may return nil while no session exists.
func (r *Renderer) SetVisualiser(fn func() Visualiser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vis = fn
}

// Run redraws the frame every interval until ctx is done. A non-positive
// interval selects [DefaultInterval].
func (r *Renderer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.draw(); err != nil {
			return fmt.Errorf("tui: draw: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// draw writes one frame, moving the cursor back over the previous one.
func (r *Renderer) draw() error {
	frame := r.Render()
	r.mu.Lock()
	prev := r.drawn
	r.drawn = strings.Count(frame, "\n") + 1
	r.mu.Unlock()

	var b strings.Builder
	switch {
	case prev > 1:
		// Cursor to the start of the previous frame, then clear below.
		fmt.Fprintf(&b, "\r\x1b[%dA\x1b[J", prev-1)
	case prev == 1:
		b.WriteString("\r\x1b[J")
	}
	b.WriteString(frame)
	_, err := io.WriteString(r.out, b.String())
	return err
}

// Render returns the current frame without drawing it.
func (r *Renderer) Render() string {
	r.mu.Lock()
	status, transcript, visFn := r.status, r.transcript, r.vis
	r.mu.Unlock()

	var vis Visualiser
	if visFn != nil {
		vis = visFn()
	}
	inner := r.width - 4
	bc := r.styles.Border

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", r.width-2)+"╮"))
	lines = append(lines, r.row(r.styles.Title.Render(r.title)+"  "+r.styles.status(status.Kind).Render(truncate(status.Text, inner-len(r.title)-2))))
	lines = append(lines, r.row(""))

	text := transcript
	if text == "" {
		text = r.styles.Help.Render("…")
	} else {
		text = r.styles.Transcript.Render(tail(text, inner))
	}
	lines = append(lines, r.row(text))

	if r.meter.Load() {
		var amp float64
		var bins []byte
		if vis != nil {
			amp = vis.Amplitude()
			bins = vis.FrequencyData()
		}
		lines = append(lines, r.row(r.styles.Meter.Render(Spectrum(bins, inner))))
		lines = append(lines, r.row(r.styles.Meter.Render(MeterBar(amp, inner))))
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", r.width-2)+"╯"))
	lines = append(lines, r.styles.Help.Render("ctrl+c to stop"))
	return strings.Join(lines, "\n")
}

// row frames content between side borders, padding it to the inner width.
func (r *Renderer) row(content string) string {
	inner := r.width - 4
	bc := r.styles.Border
	pad := max(0, inner-lipgloss.Width(content))
	return bc.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + bc.Render("│")
}

// ─── Meter rendering ──────────────────────────────────────────────────────────

var sparks = []rune("▁▂▃▄▅▆▇█")

// MeterBar renders amp in [0, 1] as a bar of width cells.
func MeterBar(amp float64, width int) string {
	if width <= 0 {
		return ""
	}
	amp = min(max(amp, 0), 1)
	n := int(amp*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// Spectrum renders bins as a sparkline of width cells. Adjacent bins are
// averaged when there are more bins than cells. Missing bins render as
// silence.
func Spectrum(bins []byte, width int) string {
	if width <= 0 {
		return ""
	}
	out := make([]rune, width)
	for i := range out {
		lo := i * len(bins) / width
		hi := (i + 1) * len(bins) / width
		if hi <= lo {
			hi = lo + 1
		}
		var sum, n int
		for j := lo; j < hi && j < len(bins); j++ {
			sum += int(bins[j])
			n++
		}
		level := 0
		if n > 0 {
			level = (sum / n) * len(sparks) / 256
		}
		out[i] = sparks[level]
	}
	return string(out)
}

// truncate shortens s to at most width cells, marking the cut with "…".
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// tail keeps the last width cells of s on one line, marking the cut with "…".
func tail(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[1:]
	}
	return "…" + string(runes)
}
