package media

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Codec string

const (
	CodecPCM      Codec = "pcm"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// CarrierFrameBytes is the length of one 20ms mu-law frame at 8kHz.
const CarrierFrameBytes = 160

// Decode converts encoded audio bytes to float32 PCM samples normalized to [-1, 1].
// Returns samples and the sample rate.
func Decode(data []byte, codec Codec, sampleRate int) ([]float32, int, error) {
	if codec == CodecPCM {
		return decodePCM(data), sampleRate, nil
	}

	if codec == CodecG711Ulaw {
		return decodeG711Ulaw(data), 8000, nil
	}

	if codec == CodecG711Alaw {
		return decodeG711Alaw(data), 8000, nil
	}

	return nil, 0, fmt.Errorf("unsupported codec: %s", codec)
}

// EncodeUlaw encodes 16-bit linear PCM samples to mu-law bytes, the format
// expected on the outbound carrier media frame.
func EncodeUlaw(samples []int16) []byte {
	return encodeG711Ulaw(samples)
}

// Float32ToPCM16 converts normalized [-1, 1] float samples to 16-bit linear
// PCM, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		out[i] = int16(clamped * math.MaxInt16)
	}
	return out
}

// PCM16ToFloat32 converts 16-bit linear PCM samples to normalized
// [-1, 1] float32, the inverse of Float32ToPCM16.
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// PCM16ToBytes encodes 16-bit linear PCM samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeUlawPCM16 decodes mu-law bytes to 16-bit linear PCM samples without
// the float32 normalization step, for energy computation and re-encoding.
func DecodeUlawPCM16(data []byte) []int16 {
	return decodeG711UlawPCM16(data)
}

// RMSEnergy computes the root-mean-square energy of 16-bit linear PCM
// samples on their native amplitude scale (not normalized to [-1, 1]); this
// matches the scale the interruption detector's configured thresholds are
// expressed in.
func RMSEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
