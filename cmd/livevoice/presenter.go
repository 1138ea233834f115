package main

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/observability"
	"github.com/lexiqai/live-voice/internal/session"
	"github.com/lexiqai/live-voice/internal/transcript"
)

// consolePresenter renders session changes as log lines.
type consolePresenter struct {
	log zerolog.Logger
}

func newConsolePresenter(logger zerolog.Logger) *consolePresenter {
	return &consolePresenter{log: observability.WithComponent(logger, "presenter")}
}

func (p *consolePresenter) StateChanged(state session.ConnectionState) {
	p.log.Info().Str("state", string(state)).Msg("connection state")
}

func (p *consolePresenter) PartialTranscript(speaker transcript.Speaker, text string) {
	if text == "" {
		return
	}
	p.log.Debug().Str("speaker", speaker.String()).Str("text", text).Msg("partial")
}

func (p *consolePresenter) TranscriptCommitted(entries []transcript.Entry) {
	for _, e := range entries {
		p.log.Info().Str("speaker", e.Label).Msg(e.Text)
	}
}

func (p *consolePresenter) ErrorChanged(message string) {
	if message == "" {
		return
	}
	p.log.Error().Msg(message)
}
