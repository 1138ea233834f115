// Package live connects a session to the remote conversational endpoint: it
// opens the bidirectional stream, sends captured audio, and turns server
// messages into a single ordered stream of Events.
package live

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send once the transport is shutting down.
var ErrClosed = errors.New("live transport closed")

// EventKind enumerates the inbound event variants.
type EventKind int

const (
	EventAudio EventKind = iota + 1
	EventInterrupted
	EventInputTranscription
	EventOutputTranscription
	EventTurnComplete
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventInputTranscription:
		return "input_transcription"
	case EventOutputTranscription:
		return "output_transcription"
	case EventTurnComplete:
		return "turn_complete"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence. Data carries base64 PCM16 for EventAudio,
// Text the fragment for the transcription kinds, and Message the reason for
// EventError.
type Event struct {
	Kind    EventKind
	Data    string
	Text    string
	Message string
}

// Setup is the session configuration sent when the stream opens.
type Setup struct {
	Model               string
	ResponseModality    string
	Voice               string
	Instruction         string
	InputTranscription  bool
	OutputTranscription bool
}

// Media is one outbound audio payload.
type Media struct {
	MIMEType string
	Data     string
}

// Transport is an open session stream.
//
// Events delivers inbound events in arrival order. After Close, or after the
// remote side ends the stream, exactly one EventClosed is delivered and the
// channel is closed; an abnormal end is preceded by an EventError.
type Transport interface {
	Send(m Media) error
	Events() <-chan Event
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, setup Setup) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, setup Setup) (Transport, error) {
	return f(ctx, setup)
}
