package audio

import (
	"encoding/binary"
	"math"
)

// Quantisation constants for 16-bit signed PCM. Encoding scales by
// pcm16Scale and decoding divides by pcm16Range, so +1.0 maps to 32767 and
// 32767 maps back to 32767/32768.
const (
	pcm16Scale = 32767
	pcm16Range = 32768
)

// QuantizeSample converts one float sample to int16, rounding to the nearest
// step and clamping to the representable range. Values with |s| <= 1 never
// clamp.
func QuantizeSample(s float32) int16 {
	v := math.Round(float64(s) * pcm16Scale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FloatToInt16s quantises buf to 16-bit samples.
func FloatToInt16s(buf Buffer) []int16 {
	out := make([]int16, len(buf))
	for i, s := range buf {
		out[i] = QuantizeSample(s)
	}
	return out
}

// Int16sToFloat converts 16-bit samples back to floats by dividing by the
// full 16-bit range.
func Int16sToFloat(pcm []int16) Buffer {
	out := make(Buffer, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / pcm16Range
	}
	return out
}

// FloatToPCM16 quantises buf and lays the samples out as little-endian int16
// bytes (2 bytes per sample).
func FloatToPCM16(buf Buffer) []byte {
	out := make([]byte, len(buf)*2)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(QuantizeSample(s)))
	}
	return out
}

// PCM16ToFloat reinterprets little-endian int16 bytes as samples. A trailing
// odd byte is ignored.
func PCM16ToFloat(b []byte) Buffer {
	out := make(Buffer, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / pcm16Range
	}
	return out
}
