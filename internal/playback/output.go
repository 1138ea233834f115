// Package playback schedules decoded remote audio for gapless output.
package playback

import (
	"github.com/lexiqai/live-voice/internal/audio"
)

// Source is a handle to one scheduled playback unit.
type Source interface {
	// Stop cancels the unit. It must not invoke the unit's onEnded callback.
	Stop()
}

// Output renders chunks at absolute times on its playback clock.
type Output interface {
	// Play schedules chunk to start at the given clock time. onEnded is
	// called once, asynchronously, when the unit finishes on its own; it is
	// never called for a unit that was stopped.
	Play(chunk audio.Chunk, at float64, onEnded func()) (Source, error)
	// Flush discards samples already handed to the device but not yet heard.
	Flush()
}

// Sink is an Output that owns a device and must be closed.
type Sink interface {
	Output
	Close() error
}

// Opener acquires a Sink bound to a playback clock.
type Opener func(clock audio.Clock) (Sink, error)
