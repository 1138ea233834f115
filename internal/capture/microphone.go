// Package capture turns live microphone input into transport-ready payloads.
package capture

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrPermissionDenied is returned when the device refuses access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupportedEnvironment is returned when no capture capability exists.
	ErrUnsupportedEnvironment = errors.New("microphone capture is not supported in this environment")
)

// Config describes the stream requested from a Microphone.
type Config struct {
	SampleRate  int
	Channels    int
	InputFormat string
	Device      string
}

// Stream is an open microphone: an io.Reader of 32-bit little-endian float
// frames. Stop ends every underlying track and unblocks pending reads.
type Stream interface {
	io.Reader
	Stop() error
}

// Microphone acquires capture streams.
type Microphone interface {
	// Available reports ErrUnsupportedEnvironment when capture cannot work at all.
	Available() error
	Open(ctx context.Context, cfg Config) (Stream, error)
}
