package media

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SamplesToWAV encodes float32 PCM samples as a WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// ParseWAV extracts 16-bit mono PCM samples and the sample rate from a
// canonical WAV byte stream (the counterpart to SamplesToWAV above),
// scanning chunks rather than assuming the fixed 44-byte header
// SamplesToWAV emits, since upstream TTS services may include extra
// chunks (LIST, fact) before "data".
func ParseWAV(data []byte) (samples []int16, sampleRate int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var numChannels, bitsPerSample uint16
	var dataStart, dataLen int

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return nil, 0, fmt.Errorf("truncated fmt chunk")
			}
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			dataStart = body
			dataLen = size
		}

		pos = body + size + size%2
	}

	if dataStart == 0 || dataLen == 0 {
		return nil, 0, fmt.Errorf("no data chunk found")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bits per sample %d", bitsPerSample)
	}
	if dataStart+dataLen > len(data) {
		dataLen = len(data) - dataStart
	}

	raw := data[dataStart : dataStart+dataLen]
	n := len(raw) / 2
	all := make([]int16, n)
	for i := 0; i < n; i++ {
		all[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	if numChannels <= 1 {
		return all, sampleRate, nil
	}

	// Downmix to mono by averaging channels.
	frames := n / int(numChannels)
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < int(numChannels); c++ {
			sum += int32(all[i*int(numChannels)+c])
		}
		mono[i] = int16(sum / int32(numChannels))
	}
	return mono, sampleRate, nil
}
