package session

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/audio"
	"github.com/lexiqai/live-voice/internal/capture"
	"github.com/lexiqai/live-voice/internal/live"
	"github.com/lexiqai/live-voice/internal/playback"
)

// resources are the handles detached from a Controller by a teardown.
type resources struct {
	scheduler     *playback.Scheduler
	pipeline      *capture.Pipeline
	stream        capture.Stream
	captureClock  audio.Clock
	playbackClock audio.Clock
	sink          playback.Sink
	transport     live.Transport
	log           zerolog.Logger
}

// release stops playback, then capture, then closes the clocks, the speaker
// and the transport. Absent handles are skipped.
func (r resources) release() {
	if r.scheduler != nil {
		r.scheduler.FlushAll()
	}
	if r.pipeline != nil {
		r.pipeline.Disconnect()
	}
	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			r.log.Warn().Err(err).Msg("microphone did not stop cleanly")
		}
	}
	for _, clk := range []audio.Clock{r.captureClock, r.playbackClock} {
		if clk != nil && !clk.Closed() {
			_ = clk.Close()
		}
	}
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			r.log.Warn().Err(err).Msg("speaker did not close cleanly")
		}
	}
	if r.transport != nil {
		if err := r.transport.Close(); err != nil {
			r.log.Debug().Err(err).Msg("transport close")
		}
	}
}
