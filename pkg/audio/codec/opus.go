//go:build cgo

package codec

import (
	"fmt"

	"github.com/MrWong99/orbtalk/pkg/audio"
	"layeh.com/gopus"
)

// maxPacketBytes bounds a single encoded Opus packet (RFC 6716 recommends
// 4000 bytes as a safe upper limit).
const maxPacketBytes = 4000

// opusRates are the sample rates libopus accepts.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// opusCodec wraps a gopus encoder/decoder pair for mono audio. Each half is
// created on first use, so an adapter that only encodes never allocates a
// decoder and vice versa.
type opusCodec struct {
	enc          *gopus.Encoder
	dec          *gopus.Decoder
	sampleRate   int
	bitrate      int
	frameSize    int
	maxFrameSize int
}

func newOpusCodec(cfg Config) (frameCodec, error) {
	if !opusRates[cfg.SampleRate] {
		return nil, fmt.Errorf("codec: opus does not support %d Hz", cfg.SampleRate)
	}
	if !ValidOpusFrameSize(cfg.SampleRate, cfg.FrameSize) {
		return nil, fmt.Errorf("codec: %d samples at %d Hz is not an opus frame size", cfg.FrameSize, cfg.SampleRate)
	}
	return &opusCodec{
		sampleRate: cfg.SampleRate,
		bitrate:    cfg.Bitrate,
		frameSize:  cfg.FrameSize,
		// 120 ms is the longest packet duration Opus can carry.
		maxFrameSize: cfg.SampleRate * 120 / 1000,
	}, nil
}

func (c *opusCodec) encode(pcm []int16) ([]byte, error) {
	if c.enc == nil {
		enc, err := gopus.NewEncoder(c.sampleRate, audio.Channels, gopus.Voip)
		if err != nil {
			return nil, fmt.Errorf("create opus encoder: %w", err)
		}
		enc.SetBitrate(c.bitrate)
		c.enc = enc
	}
	return c.enc.Encode(pcm, c.frameSize, maxPacketBytes)
}

func (c *opusCodec) decode(packet []byte) ([]int16, error) {
	if c.dec == nil {
		dec, err := gopus.NewDecoder(c.sampleRate, audio.Channels)
		if err != nil {
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		c.dec = dec
	}
	return c.dec.Decode(packet, c.maxFrameSize, false)
}
