package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the file.
const DefaultWatchInterval = 2 * time.Second

// Watcher keeps the config of a running client in sync with its file.
// Every tick it stats the file; only when size or mtime moved is the file
// read, hashed and decoded. Edits that fail to parse or validate are logged
// and skipped, so [Watcher.Current] always holds the last good config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// fileStamp identifies one version of the watched file.
type fileStamp struct {
	size int64
	mod  time.Time
	sum  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger for reload events. Default: slog.Default().
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher loads path and returns a watcher holding it. onChange may be
// nil. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. It always returns nil so it can sit
// in an errgroup next to the other client loops.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Poll()
		}
	}
}

// Poll checks the file once and reports whether a new config was applied.
// onChange runs on the calling goroutine, outside the watcher's lock.
func (w *Watcher) Poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config: watch: stat failed", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.Size() == prev.size && info.ModTime().Equal(prev.mod) {
		return false
	}

	cfg, stamp, err := w.read()
	if err != nil {
		// Remember the broken version so it is reported once.
		w.mu.Lock()
		w.stamp = fileStamp{size: info.Size(), mod: info.ModTime()}
		w.mu.Unlock()
		w.logger.Warn("config: watch: keeping previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	old := w.current
	sameContent := stamp.sum == w.stamp.sum
	w.stamp = stamp
	if !sameContent {
		w.current = cfg
	}
	w.mu.Unlock()

	if sameContent {
		return false
	}
	w.logger.Info("config: reloaded", "path", w.path, "log_level", cfg.LogLevel)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// read decodes and validates the file and returns it with its stamp.
func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := loadBytes(data)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{size: info.Size(), mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
