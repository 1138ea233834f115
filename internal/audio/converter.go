package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FloatToPCM16 converts floating-point samples in [-1, 1] to 16-bit signed
// little-endian PCM.
//
// Each sample is scaled by 32768 and truncated toward zero. Out-of-range input
// is not clamped: 1.0 scales to 32768, which wraps to -32768 when narrowed to
// int16. Callers that need saturation must clamp before calling.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int32(s * 32768))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts 16-bit signed little-endian PCM to floating-point
// samples in [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// DecodeFloat32LE interprets raw bytes as 32-bit little-endian IEEE floats,
// the sample format produced by the capture device.
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 data length must be a multiple of 4, got %d", len(data))
	}

	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// Resample converts mono samples between sample rates using linear
// interpolation. It is a format conversion only: no filtering is applied.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := float32(srcPos - float64(idx0))
		output[i] = samples[idx0]*(1-fraction) + samples[idx1]*fraction
	}

	return output
}
