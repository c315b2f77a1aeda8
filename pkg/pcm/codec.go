// Package pcm converts between float32 capture buffers and the base64-framed
// 16-bit little-endian PCM the realtime wire format carries. Both directions
// of the conversation use mono audio at SampleRate.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// SampleRate is the sample rate agreed with the upstream provider for both
// input and output audio.
const SampleRate = 24000

// Encode quantizes float samples in [-1, 1] to little-endian int16 PCM and
// returns the base64 encoding. Samples outside the range are clamped and NaN
// encodes to zero.
func Encode(samples []float32) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(quantize(s)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode returns the raw PCM bytes carried by a base64 audio payload. The
// playback device owns any further conversion.
func Decode(audio string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(audio)
}

// Samples reinterprets raw little-endian PCM bytes as int16 samples. A
// trailing odd byte is ignored.
func Samples(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}

func quantize(s float32) int16 {
	f := float64(s)
	if math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	// Negative and non-negative halves scale asymmetrically so that -1 maps
	// to -0x8000 and +1 to 0x7FFF.
	if f < 0 {
		return int16(math.Round(f * 0x8000))
	}
	return int16(math.Round(f * 0x7FFF))
}
