package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the capture and wire sample rate in Hz.
	SampleRate = 16000
	// DefaultBlockSize is the number of samples per processing block.
	DefaultBlockSize = 4096
)

// EncodePCM16 clamps each sample to [-1, 1], scales it by 32767, and rounds to
// a little-endian signed 16-bit sample. The returned buffer is freshly allocated.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(encodeSample(sample)))
	}
	return out
}

func encodeSample(sample float32) int16 {
	value := float64(sample)
	switch {
	case math.IsNaN(value):
		return 0
	case value > 1:
		value = 1
	case value < -1:
		value = -1
	}
	return int16(math.Round(value * 32767))
}

// DecodePCM16 is the inverse of EncodePCM16, used by cue playback and tests.
func DecodePCM16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
