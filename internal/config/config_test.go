package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/orbtalk/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
endpoint:
  origin: http://localhost:8000
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Session.InactivityTimeout != 30*time.Second {
		t.Errorf("inactivity_timeout = %s, want 30s", cfg.Session.InactivityTimeout)
	}
	if cfg.Session.TranscriptIdle != 5*time.Second {
		t.Errorf("transcript_idle = %s, want 5s", cfg.Session.TranscriptIdle)
	}
	if cfg.Audio.Codec != config.CodecOpus {
		t.Errorf("codec = %q, want opus", cfg.Audio.Codec)
	}
	if cfg.Audio.CaptureFrames != 1440 {
		t.Errorf("capture_frames = %d, want 1440", cfg.Audio.CaptureFrames)
	}
	if cfg.Audio.Bitrate != 64000 {
		t.Errorf("bitrate = %d, want 64000", cfg.Audio.Bitrate)
	}
	if cfg.Admin.ListenAddr != config.DefaultAdminAddr || !cfg.Admin.Enabled() {
		t.Errorf("admin = %+v, want enabled on %s", cfg.Admin, config.DefaultAdminAddr)
	}
	if !cfg.UI.MeterEnabled() {
		t.Error("meter should default to enabled")
	}
	if cfg.Redial.Enabled {
		t.Error("redial should default to disabled")
	}
	if cfg.Redial.MaxRetries != 5 || cfg.Redial.Backoff != time.Second || cfg.Redial.MaxBackoff != 30*time.Second {
		t.Errorf("redial = %+v", cfg.Redial)
	}
}

func TestLoadFromReader_FullDocument(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
log_level: debug
endpoint:
  url: wss://voice.example.com/api/chat
session:
  inactivity_timeout: 45s
  transcript_idle: 3s
audio:
  codec: pcm16
  capture_frames: 4096
  bitrate: 32000
  input_device: "USB Mic"
  output_device: "Speakers"
admin:
  listen_addr: "-"
ui:
  meter: false
redial:
  enabled: true
  max_retries: 2
  backoff: 500ms
  max_backoff: 4s
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.InactivityTimeout != 45*time.Second {
		t.Errorf("inactivity_timeout = %s", cfg.Session.InactivityTimeout)
	}
	if cfg.Audio.Codec != config.CodecPCM16 || cfg.Audio.CaptureFrames != 4096 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.InputDevice != "USB Mic" || cfg.Audio.OutputDevice != "Speakers" {
		t.Errorf("devices = %q / %q", cfg.Audio.InputDevice, cfg.Audio.OutputDevice)
	}
	if cfg.Admin.Enabled() {
		t.Error("admin should be disabled by \"-\"")
	}
	if cfg.UI.MeterEnabled() {
		t.Error("meter should be disabled")
	}
	if !cfg.Redial.Enabled || cfg.Redial.Backoff != 500*time.Millisecond {
		t.Errorf("redial = %+v", cfg.Redial)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
endpoint:
  origin: http://localhost
sesion:
  inactivity_timeout: 1s
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no endpoint",
			yaml: `log_level: info`,
			want: "one of origin or url is required",
		},
		{
			name: "both endpoints",
			yaml: "endpoint:\n  origin: http://a\n  url: ws://a/api/chat\n",
			want: "mutually exclusive",
		},
		{
			name: "http url",
			yaml: "endpoint:\n  url: http://a/api/chat\n",
			want: "must use ws or wss",
		},
		{
			name: "bad log level",
			yaml: "log_level: loud\nendpoint:\n  origin: http://a\n",
			want: "log_level",
		},
		{
			name: "bad codec",
			yaml: "endpoint:\n  origin: http://a\naudio:\n  codec: mp3\n",
			want: "audio.codec",
		},
		{
			name: "opus frame size",
			yaml: "endpoint:\n  origin: http://a\naudio:\n  capture_frames: 4096\n",
			want: "not an opus frame size",
		},
		{
			name: "bitrate",
			yaml: "endpoint:\n  origin: http://a\naudio:\n  bitrate: 100\n",
			want: "audio.bitrate",
		},
		{
			name: "negative timeout",
			yaml: "endpoint:\n  origin: http://a\nsession:\n  inactivity_timeout: -1s\n",
			want: "inactivity_timeout",
		},
		{
			name: "backoff order",
			yaml: "endpoint:\n  origin: http://a\nredial:\n  backoff: 10s\n  max_backoff: 1s\n",
			want: "max_backoff",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
log_level: loud
audio:
  codec: mp3
`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "endpoint", "audio.codec"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "orbtalk.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  origin: https://x.example\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint.Origin != "https://x.example" {
		t.Errorf("origin = %q", cfg.Endpoint.Origin)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want os.ErrNotExist", err)
	}
}

func TestRead_SkipsValidation(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "orbtalk.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted a config without endpoint")
	}

	cfg, err := config.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Session.InactivityTimeout != config.DefaultInactivityTimeout {
		t.Errorf("defaults not applied: inactivity timeout %v", cfg.Session.InactivityTimeout)
	}

	cfg.Endpoint.Origin = "https://x.example"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate after override: %v", err)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	for lvl, want := range map[config.LogLevel]string{
		config.LogDebug: "DEBUG",
		config.LogInfo:  "INFO",
		config.LogWarn:  "WARN",
		config.LogError: "ERROR",
		"":              "INFO",
	} {
		if got := lvl.SlogLevel().String(); got != want {
			t.Errorf("%q.SlogLevel() = %s, want %s", lvl, got, want)
		}
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		c := &config.Config{Endpoint: config.EndpointConfig{Origin: "http://a"}}
		config.ApplyDefaults(c)
		return c
	}

	if d := config.Diff(base(), base()); !d.IsEmpty() {
		t.Errorf("identical configs produced diff %+v", d)
	}

	old, upd := base(), base()
	off := false
	upd.LogLevel = config.LogDebug
	upd.UI.Meter = &off
	upd.Audio.Codec = config.CodecPCM16
	upd.Endpoint.Origin = "http://b"

	d := config.Diff(old, upd)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.MeterChanged || d.MeterEnabled {
		t.Errorf("meter diff = %+v", d)
	}
	want := []string{"endpoint", "audio"}
	if len(d.RestartRequired) != len(want) {
		t.Fatalf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	for i := range want {
		if d.RestartRequired[i] != want[i] {
			t.Errorf("RestartRequired[%d] = %q, want %q", i, d.RestartRequired[i], want[i])
		}
	}
}
