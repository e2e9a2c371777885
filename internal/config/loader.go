package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/orbtalk/pkg/audio"
	"github.com/MrWong99/orbtalk/pkg/audio/codec"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [Read] and [Validate].
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Read decodes the file at path and applies defaults without validating, so
// callers can override fields (e.g. from flags) before calling [Validate].
func Read(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default config, which is invalid
// only because it names no endpoint.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses one YAML document strictly and applies defaults.
func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// loadBytes is [LoadFromReader] over an in-memory document.
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied and returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Endpoint
	switch {
	case cfg.Endpoint.Origin == "" && cfg.Endpoint.URL == "":
		errs = append(errs, errors.New("endpoint: one of origin or url is required"))
	case cfg.Endpoint.Origin != "" && cfg.Endpoint.URL != "":
		errs = append(errs, errors.New("endpoint: origin and url are mutually exclusive"))
	case cfg.Endpoint.URL != "":
		u, err := url.Parse(cfg.Endpoint.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("endpoint.url: %w", err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("endpoint.url %q must use ws or wss", cfg.Endpoint.URL))
		}
	}

	// Session
	if cfg.Session.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.inactivity_timeout %s must be positive", cfg.Session.InactivityTimeout))
	}
	if cfg.Session.TranscriptIdle < 0 {
		errs = append(errs, fmt.Errorf("session.transcript_idle %s must be positive", cfg.Session.TranscriptIdle))
	}

	// Audio
	if !cfg.Audio.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: opus, pcm16", cfg.Audio.Codec))
	}
	if cfg.Audio.CaptureFrames < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_frames %d must be positive", cfg.Audio.CaptureFrames))
	} else if cfg.Audio.Codec == CodecOpus && !codec.ValidOpusFrameSize(audio.SampleRate, cfg.Audio.CaptureFrames) {
		errs = append(errs, fmt.Errorf("audio.capture_frames %d is not an opus frame size at 24 kHz; valid values: 60, 120, 240, 480, 960, 1440", cfg.Audio.CaptureFrames))
	}
	if cfg.Audio.Bitrate < 6000 || cfg.Audio.Bitrate > 510000 {
		errs = append(errs, fmt.Errorf("audio.bitrate %d is out of range [6000, 510000]", cfg.Audio.Bitrate))
	}

	// Redial
	if cfg.Redial.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("redial.max_retries %d must not be negative", cfg.Redial.MaxRetries))
	}
	if cfg.Redial.Backoff < 0 || cfg.Redial.MaxBackoff < 0 {
		errs = append(errs, errors.New("redial: backoff durations must be positive"))
	} else if cfg.Redial.MaxBackoff < cfg.Redial.Backoff {
		errs = append(errs, fmt.Errorf("redial.max_backoff %s is shorter than redial.backoff %s", cfg.Redial.MaxBackoff, cfg.Redial.Backoff))
	}

	return errors.Join(errs...)
}
