package session

import (
	"errors"

	"github.com/lexiqai/live-voice/internal/capture"
	"github.com/lexiqai/live-voice/internal/transcript"
)

// ConnectionState is the session's connection state machine.
type ConnectionState string

const (
	StateIdle       ConnectionState = "IDLE"
	StateConnecting ConnectionState = "CONNECTING"
	StateConnected  ConnectionState = "CONNECTED"
	StateError      ConnectionState = "ERROR"
)

// Active reports whether a session holds resources in this state.
func (s ConnectionState) Active() bool {
	return s == StateConnecting || s == StateConnected
}

var (
	ErrUnsupportedEnvironment = capture.ErrUnsupportedEnvironment
	ErrPermissionDenied       = capture.ErrPermissionDenied
	ErrTransportOpen          = errors.New("failed to open live session")
	ErrTransportRuntime       = errors.New("live session failed")
	ErrTransportClosed        = errors.New("live session closed")
	ErrSessionActive          = errors.New("a session is already active")
	ErrStartAborted           = errors.New("session start was superseded")
)

// Snapshot is everything a presentation layer renders.
type Snapshot struct {
	State        ConnectionState    `json:"state"`
	History      []transcript.Entry `json:"history"`
	UserPartial  string             `json:"user_partial"`
	ModelPartial string             `json:"model_partial"`
	Error        string             `json:"error,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
}

// Presenter receives change notifications. Calls are made outside the
// controller's lock, one at a time, in the order the changes happened. A
// presenter may call back into the controller; notifications that call
// raises are delivered after the current one returns.
type Presenter interface {
	StateChanged(state ConnectionState)
	PartialTranscript(speaker transcript.Speaker, text string)
	TranscriptCommitted(entries []transcript.Entry)
	ErrorChanged(message string)
}

// NopPresenter ignores every notification.
type NopPresenter struct{}

func (NopPresenter) StateChanged(ConnectionState)                  {}
func (NopPresenter) PartialTranscript(transcript.Speaker, string) {}
func (NopPresenter) TranscriptCommitted([]transcript.Entry)       {}
func (NopPresenter) ErrorChanged(string)                          {}
