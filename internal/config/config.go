// Package config provides the configuration schema, loader, and hot-reload
// watcher for the orbtalk voice client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown and empty levels
// map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Codec selects the preferred audio codec.
type Codec string

const (
	// CodecOpus uses Opus when available and falls back to raw PCM16.
	CodecOpus Codec = "opus"

	// CodecPCM16 always sends raw 16-bit PCM.
	CodecPCM16 Codec = "pcm16"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	return c == CodecOpus || c == CodecPCM16
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultInactivityTimeout = 30 * time.Second
	DefaultTranscriptIdle    = 5 * time.Second
	DefaultCaptureFrames     = 1440
	DefaultBitrate           = 64000
	DefaultAdminAddr         = "127.0.0.1:9464"
	DefaultRedialRetries     = 5
	DefaultRedialBackoff     = time.Second
	DefaultRedialMaxBackoff  = 30 * time.Second
)

// Config is the root configuration structure for orbtalk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. It can be changed at runtime through the
	// [Watcher].
	LogLevel LogLevel `yaml:"log_level"`

	Endpoint EndpointConfig `yaml:"endpoint"`
	Session  SessionConfig  `yaml:"session"`
	Audio    AudioConfig    `yaml:"audio"`
	Admin    AdminConfig    `yaml:"admin"`
	UI       UIConfig       `yaml:"ui"`
	Redial   RedialConfig   `yaml:"redial"`
}

// EndpointConfig locates the model-serving endpoint. Exactly one of Origin
// and URL must be set.
type EndpointConfig struct {
	// Origin is the page origin of the serving host (e.g.
	// "https://voice.example.com"). The chat endpoint is derived from it:
	// https becomes wss, http becomes ws, and the path is /api/chat.
	Origin string `yaml:"origin"`

	// URL is an explicit ws:// or wss:// endpoint used verbatim.
	URL string `yaml:"url"`
}

// SessionConfig holds the timing parameters of one voice session.
type SessionConfig struct {
	// InactivityTimeout is how long the session waits without any inbound
	// frame before force-closing. Default: 30s.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// TranscriptIdle is how long the transcript stays on screen without new
	// text before it is cleared. Default: 5s.
	TranscriptIdle time.Duration `yaml:"transcript_idle"`
}

// AudioConfig selects the codec and the sound devices.
type AudioConfig struct {
	// Codec is the preferred codec. Default: opus.
	Codec Codec `yaml:"codec"`

	// CaptureFrames is the number of samples per captured buffer at 24 kHz.
	// With the opus codec it must be a valid Opus frame size. Default: 1440.
	CaptureFrames int `yaml:"capture_frames"`

	// Bitrate is the Opus target bitrate in bit/s. Default: 64000.
	Bitrate int `yaml:"bitrate"`

	// InputDevice and OutputDevice select sound devices by exact name.
	// Empty selects the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// AdminConfig configures the local admin HTTP server.
type AdminConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz.
	// Set to "-" to disable the admin server. Default: 127.0.0.1:9464.
	ListenAddr string `yaml:"listen_addr"`
}

// Enabled reports whether the admin server should run.
func (a AdminConfig) Enabled() bool {
	return a.ListenAddr != "-"
}

// UIConfig configures the terminal renderer.
type UIConfig struct {
	// Meter enables the output level meter. Default: true.
	Meter *bool `yaml:"meter"`
}

// MeterEnabled reports whether the level meter is shown.
func (u UIConfig) MeterEnabled() bool {
	return u.Meter == nil || *u.Meter
}

// RedialConfig controls automatic re-dialling after a session ends for a
// reason other than the user stopping it.
type RedialConfig struct {
	// Enabled turns redial on. Default: false.
	Enabled bool `yaml:"enabled"`

	// MaxRetries is the number of consecutive failed attempts before giving
	// up. Default: 5.
	MaxRetries int `yaml:"max_retries"`

	// Backoff is the delay before the first attempt; it doubles on every
	// consecutive failure. Default: 1s.
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the delay. Default: 30s.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// ApplyDefaults fills zero values in cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Session.InactivityTimeout == 0 {
		cfg.Session.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.Session.TranscriptIdle == 0 {
		cfg.Session.TranscriptIdle = DefaultTranscriptIdle
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = CodecOpus
	}
	if cfg.Audio.CaptureFrames == 0 {
		cfg.Audio.CaptureFrames = DefaultCaptureFrames
	}
	if cfg.Audio.Bitrate == 0 {
		cfg.Audio.Bitrate = DefaultBitrate
	}
	if cfg.Admin.ListenAddr == "" {
		cfg.Admin.ListenAddr = DefaultAdminAddr
	}
	if cfg.Redial.MaxRetries == 0 {
		cfg.Redial.MaxRetries = DefaultRedialRetries
	}
	if cfg.Redial.Backoff == 0 {
		cfg.Redial.Backoff = DefaultRedialBackoff
	}
	if cfg.Redial.MaxBackoff == 0 {
		cfg.Redial.MaxBackoff = DefaultRedialMaxBackoff
	}
}
