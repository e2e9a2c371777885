//go:build !cgo

package portaudio

import (
	"context"
	"errors"

	"github.com/MrWong99/orbtalk/pkg/audio"
)

var errNoCgo = errors.New("built without cgo")

// Initialize reports that no audio backend is available.
func Initialize() (terminate func() error, err error) {
	return nil, deviceUnavailable("initialize", errNoCgo)
}

// Devices reports that no audio backend is available.
func Devices() ([]Device, error) {
	return nil, deviceUnavailable("list devices", errNoCgo)
}

// Mic is unavailable without cgo.
type Mic struct{}

// NewMic returns a Mic whose Start always fails.
func NewMic(...Option) *Mic { return &Mic{} }

// Start always fails with [audio.ErrDeviceUnavailable].
func (*Mic) Start(context.Context) (<-chan audio.Buffer, error) {
	return nil, deviceUnavailable("input device", errNoCgo)
}

// Stop does nothing.
func (*Mic) Stop() error { return nil }

// Speaker is unavailable without cgo.
type Speaker struct{}

// NewSpeaker always fails with [audio.ErrDeviceUnavailable].
func NewSpeaker(...Option) (*Speaker, error) {
	return nil, deviceUnavailable("output device", errNoCgo)
}

// Play always fails.
func (*Speaker) Play(context.Context, audio.Buffer) error {
	return deviceUnavailable("output device", errNoCgo)
}

// Flush does nothing.
func (*Speaker) Flush(context.Context) error { return nil }

// Close does nothing.
func (*Speaker) Close() error { return nil }
