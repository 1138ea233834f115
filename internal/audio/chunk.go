package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError via errors.Is.
var ErrDecode = errors.New("malformed audio payload")

// DecodeError reports an inbound payload that cannot be split into whole
// 16-bit frames.
type DecodeError struct {
	Length   int
	Channels int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed audio payload: %d bytes is not aligned to %d-channel 16-bit frames", e.Length, e.Channels)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Chunk is one decoded unit of remote audio: 16-bit little-endian PCM plus
// its format. A Chunk is never modified after it is created.
type Chunk struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Data) / (2 * c.Channels)
}

// Duration returns the playback length of the chunk in seconds.
func (c Chunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// EncodeTransportText encodes raw bytes into the text-safe form carried by the
// transport (standard base64).
func EncodeTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransportText reverses EncodeTransportText.
func DecodeTransportText(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transport text: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// DecodeRemoteAudio wraps PCM16 bytes received from the remote endpoint into a
// Chunk. The byte length must be a whole number of frames.
func DecodeRemoteAudio(data []byte, sampleRate, channels int) (Chunk, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(data)%(2*channels) != 0 {
		return Chunk{}, &DecodeError{Length: len(data), Channels: channels}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return Chunk{Data: buf, SampleRate: sampleRate, Channels: channels}, nil
}
