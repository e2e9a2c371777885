package config_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/orbtalk/internal/config"
)

const (
	baseYAML = "log_level: info\nendpoint:\n  origin: https://voice.example.com\n"
	quietUI  = "log_level: debug\nendpoint:\n  origin: https://voice.example.com\nui:\n  meter: false\n"
	badLevel = "log_level: bananas\nendpoint:\n  origin: https://voice.example.com\n"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newWatchedFile writes content to a temp file and returns a watcher over it
// together with a slice collecting every onChange call.
func newWatchedFile(t *testing.T, content string) (string, *config.Watcher, *[][2]*config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbtalk.yaml")
	rewrite(t, path, content)

	var calls [][2]*config.Config
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		calls = append(calls, [2]*config.Config{old, new})
	}, config.WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return path, w, &calls
}

// rewrite replaces the file and moves its mtime forward so the change is
// seen even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	bump(t, path)
}

var mtimeStep time.Duration

func bump(t *testing.T, path string) {
	t.Helper()
	mtimeStep += time.Second
	ts := time.Now().Add(mtimeStep)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	_, w, calls := newWatchedFile(t, baseYAML)
	if got := w.Current().LogLevel; got != config.LogInfo {
		t.Errorf("log level = %q, want info", got)
	}
	if w.Poll() {
		t.Error("Poll reported a change on an untouched file")
	}
	if len(*calls) != 0 {
		t.Errorf("onChange called %d times", len(*calls))
	}
}

func TestWatcher_AppliesChange(t *testing.T) {
	path, w, calls := newWatchedFile(t, baseYAML)
	rewrite(t, path, quietUI)

	if !w.Poll() {
		t.Fatal("Poll did not pick up the edit")
	}
	if len(*calls) != 1 {
		t.Fatalf("onChange called %d times, want 1", len(*calls))
	}
	old, updated := (*calls)[0][0], (*calls)[0][1]
	if old.LogLevel != config.LogInfo || updated.LogLevel != config.LogDebug {
		t.Errorf("levels old=%q new=%q", old.LogLevel, updated.LogLevel)
	}
	if updated.UI.MeterEnabled() {
		t.Error("new config should have the meter off")
	}
	if w.Current() != updated {
		t.Error("Current does not return the new config")
	}
}

func TestWatcher_InvalidEditKeepsLastGood(t *testing.T) {
	path, w, calls := newWatchedFile(t, baseYAML)
	rewrite(t, path, badLevel)

	if w.Poll() {
		t.Fatal("invalid edit was applied")
	}
	if got := w.Current().LogLevel; got != config.LogInfo {
		t.Errorf("log level = %q, want the previous info", got)
	}

	// Fixing the file applies it.
	rewrite(t, path, quietUI)
	if !w.Poll() {
		t.Fatal("fixed file was not applied")
	}
	if len(*calls) != 1 {
		t.Errorf("onChange called %d times, want 1", len(*calls))
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	path, w, calls := newWatchedFile(t, baseYAML)
	bump(t, path)
	if w.Poll() {
		t.Error("touch without edit reported a change")
	}
	if len(*calls) != 0 {
		t.Errorf("onChange called %d times", len(*calls))
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "gone.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbtalk.yaml")
	rewrite(t, path, baseYAML)

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) { changed <- new },
		config.WithInterval(10*time.Millisecond), config.WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, quietUI)
	select {
	case cfg := <-changed:
		if cfg.LogLevel != config.LogDebug {
			t.Errorf("log level = %q, want debug", cfg.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never applied the edit")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
