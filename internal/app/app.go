// Package app wires the orbtalk subsystems into a running client.
//
// The App owns the full lifecycle: New resolves the endpoint and the default
// transport and audio devices, and Run executes the admin server, the
// terminal renderer and the session loop under one errgroup until the
// session ends or the context is cancelled.
//
// For testing, inject doubles via functional options (WithDialer,
// WithDevices, WithMetrics, ...). When an option is not provided, New uses
// the WebSocket dialer and the PortAudio devices named in the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/orbtalk/internal/config"
	"github.com/MrWong99/orbtalk/internal/health"
	"github.com/MrWong99/orbtalk/internal/observe"
	"github.com/MrWong99/orbtalk/internal/session"
	"github.com/MrWong99/orbtalk/internal/tui"
	"github.com/MrWong99/orbtalk/pkg/audio"
	"github.com/MrWong99/orbtalk/pkg/audio/codec"
	"github.com/MrWong99/orbtalk/pkg/audio/portaudio"
	"github.com/MrWong99/orbtalk/pkg/transport"
)

// shutdownTimeout bounds the admin server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes of one client process.
type App struct {
	cfg *config.Config
	url string

	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	dialer   transport.Dialer
	devices  session.Devices
	renderer *tui.Renderer
	extra    session.Listener
	logLevel *slog.LevelVar

	configPath    string
	watchInterval time.Duration

	current atomic.Pointer[session.Session]
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialer injects a transport dialer instead of the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithDevices injects audio devices instead of the PortAudio ones.
func WithDevices(d session.Devices) Option {
	return func(a *App) { a.devices = d }
}

// WithMetrics injects the metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Default:
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithRenderer attaches a terminal renderer. It receives every session's
// status and transcript and samples the current session's levels.
func WithRenderer(r *tui.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithListener adds a listener that receives every session's updates in
// addition to the renderer.
func WithListener(l session.Listener) Option {
	return func(a *App) { a.extra = l }
}

// WithLogLevel hands the App the level of the process logger so config
// reloads can change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigWatch makes Run poll path every interval and apply live-reloadable
// changes through [App.Reload].
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App for cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Endpoint ──────────────────────────────────────────────────────
	a.url = cfg.Endpoint.URL
	if a.url == "" {
		u, err := transport.EndpointURL(cfg.Endpoint.Origin)
		if err != nil {
			return nil, fmt.Errorf("app: resolve endpoint: %w", err)
		}
		a.url = u
	}

	// ── 2. Observability ─────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}

	// ── 3. Transport and devices ─────────────────────────────────────────
	if a.dialer == nil {
		a.dialer = transport.NewWebSocketDialer()
	}
	if a.devices.Source == nil || a.devices.Output == nil {
		a.devices = a.portaudioDevices()
	}

	// ── 4. Renderer ──────────────────────────────────────────────────────
	if a.renderer != nil {
		a.renderer.SetVisualiser(func() tui.Visualiser {
			if s := a.current.Load(); s != nil {
				return s
			}
			return nil
		})
	}

	return a, nil
}

// portaudioDevices opens the configured sound devices on demand.
func (a *App) portaudioDevices() session.Devices {
	return session.Devices{
		Source: func() audio.Source {
			return portaudio.NewMic(
				portaudio.WithDevice(a.cfg.Audio.InputDevice),
				portaudio.WithFrames(a.cfg.Audio.CaptureFrames),
				portaudio.WithDropHook(func() {
					a.metrics.RecordDrop(context.Background(), observe.DropCaptureLagged)
				}),
			)
		},
		Output: func() (audio.Output, error) {
			spk, err := portaudio.NewSpeaker(portaudio.WithDevice(a.cfg.Audio.OutputDevice))
			if err != nil {
				return nil, err
			}
			return spk, nil
		},
	}
}

// URL returns the resolved chat endpoint.
func (a *App) URL() string { return a.url }

// Session returns the current session, or nil before the first one starts.
func (a *App) Session() *session.Session { return a.current.Load() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the admin server and the renderer, then runs sessions until one
// ends without redial or ctx is cancelled. Cancelling ctx stops the current
// session and is not an error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.Reload, config.WithInterval(a.watchInterval))
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	if a.cfg.Admin.Enabled() {
		srv := &http.Server{
			Addr:              a.cfg.Admin.ListenAddr,
			Handler:           a.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: admin server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.renderer != nil {
		g.Go(func() error { return a.renderer.Run(ctx, tui.DefaultInterval) })
	}

	g.Go(func() error {
		defer cancel()
		return a.runSessions(ctx)
	})

	return g.Wait()
}

// runSessions runs sessions back to back while redial allows it.
func (a *App) runSessions(ctx context.Context) error {
	var redial *Redialer
	if a.cfg.Redial.Enabled {
		redial = NewRedialer(RedialerConfig{
			MaxRetries: a.cfg.Redial.MaxRetries,
			Backoff:    a.cfg.Redial.Backoff,
			MaxBackoff: a.cfg.Redial.MaxBackoff,
		})
	}

	for {
		reachedActive, err := a.runSession(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		if redial == nil {
			return err
		}
		if reachedActive {
			redial.Reset()
		}
		slog.Warn("app: session ended", "err", err, "attempts", redial.Attempts())
		if werr := redial.Wait(ctx); werr != nil {
			if errors.Is(werr, ErrRedialExhausted) {
				return fmt.Errorf("%w: %w", werr, err)
			}
			return nil
		}
	}
}

// runSession runs one session until it ends or ctx is done. It reports
// whether the session got past the handshake.
func (a *App) runSession(ctx context.Context) (reachedActive bool, err error) {
	var active atomic.Bool
	listener := session.ListenerFuncs{
		Status: func(st session.Status) {
			if st.Kind == session.KindConnected {
				active.Store(true)
			}
			if a.renderer != nil {
				a.renderer.OnStatus(st)
			}
			if a.extra != nil {
				a.extra.OnStatus(st)
			}
		},
		Transcript: func(text string) {
			if a.renderer != nil {
				a.renderer.OnTranscript(text)
			}
			if a.extra != nil {
				a.extra.OnTranscript(text)
			}
		},
	}

	sess := session.New(a.sessionConfig(), a.dialer, a.devices,
		session.WithMetrics(a.metrics),
		session.WithListener(listener),
	)
	a.current.Store(sess)

	if err := sess.Start(ctx); err != nil {
		return active.Load(), err
	}
	select {
	case <-ctx.Done():
		sess.Stop()
		return active.Load(), nil
	case <-sess.Done():
		return active.Load(), sess.Err()
	}
}

func (a *App) sessionConfig() session.Config {
	return session.Config{
		URL:               a.url,
		InactivityTimeout: a.cfg.Session.InactivityTimeout,
		TranscriptIdle:    a.cfg.Session.TranscriptIdle,
		Codec: codec.Config{
			Kind:      codec.Kind(a.cfg.Audio.Codec),
			FrameSize: a.cfg.Audio.CaptureFrames,
			Bitrate:   a.cfg.Audio.Bitrate,
		},
	}
}

// ─── Admin ───────────────────────────────────────────────────────────────────

// AdminHandler returns the admin endpoints: /metrics, /healthz and /readyz.
// /readyz passes only while the current session is active.
func (a *App) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	health.New(
		health.WithCheck("session", health.StateCheck(a.sessionState, string(session.StateActive))),
	).Register(mux)
	return observe.Instrument(a.metrics, mux)
}

func (a *App) sessionState() string {
	if s := a.current.Load(); s != nil {
		return string(s.State())
	}
	return string(session.StateIdle)
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the live-reloadable part of a config change: the log level
// and the level meter. Everything else is logged and waits for a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.MeterChanged && a.renderer != nil {
		a.renderer.SetMeter(d.MeterEnabled)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config change takes effect after restart", "sections", d.RestartRequired)
	}
}
