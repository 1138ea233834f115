// Package session runs one live voice conversation at a time: it owns the
// connection state machine, every acquired audio resource, and the routing
// of inbound events to playback and transcript assembly.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/audio"
	"github.com/lexiqai/live-voice/internal/capture"
	"github.com/lexiqai/live-voice/internal/live"
	"github.com/lexiqai/live-voice/internal/observability"
	"github.com/lexiqai/live-voice/internal/playback"
	"github.com/lexiqai/live-voice/internal/transcript"
)

// Config controls a Controller.
type Config struct {
	Setup          live.Setup
	Capture        capture.Config
	BlockFrames    int
	PlaybackRate   int
	RemoteChannels int
	Labels         transcript.Labels
	// NewClock opens an audio clock domain; defaults to audio.NewWallClock.
	NewClock func(sampleRate int) audio.Clock
	Logger   zerolog.Logger
}

// Deps are the collaborators a Controller acquires resources from.
type Deps struct {
	Microphone capture.Microphone
	Dialer     live.Dialer
	Speakers   playback.Opener
	Presenter  Presenter
}

// Controller is the session core. All state lives behind mu; inbound events
// from one transport are dispatched in order by a single consumer goroutine.
type Controller struct {
	mic       capture.Microphone
	dialer    live.Dialer
	speakers  playback.Opener
	presenter Presenter
	cfg       Config
	baseLog   zerolog.Logger
	agg       *transcript.Aggregator

	mu        sync.Mutex
	state     ConnectionState
	errMsg    string
	history   []transcript.Entry
	attempt   uint64
	sessionID string
	log       zerolog.Logger
	metrics   *observability.Metrics
	live      bool
	notifying bool

	stream        capture.Stream
	pipeline      *capture.Pipeline
	captureClock  audio.Clock
	playbackClock audio.Clock
	sink          playback.Sink
	scheduler     *playback.Scheduler
	transport     live.Transport

	pending []func()
}

func NewController(deps Deps, cfg Config) *Controller {
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = capture.TargetRate
	}
	if cfg.Capture.Channels <= 0 {
		cfg.Capture.Channels = 1
	}
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = capture.DefaultBlockFrames
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = 24000
	}
	if cfg.RemoteChannels <= 0 {
		cfg.RemoteChannels = 1
	}
	if cfg.NewClock == nil {
		cfg.NewClock = func(rate int) audio.Clock { return audio.NewWallClock(rate) }
	}
	presenter := deps.Presenter
	if presenter == nil {
		presenter = NopPresenter{}
	}

	logger := observability.WithComponent(cfg.Logger, "session")
	return &Controller{
		mic:       deps.Microphone,
		dialer:    deps.Dialer,
		speakers:  deps.Speakers,
		presenter: presenter,
		cfg:       cfg,
		baseLog:   logger,
		agg:       transcript.NewAggregator(cfg.Labels),
		state:     StateIdle,
		log:       logger,
		metrics:   observability.NewSessionMetrics(),
	}
}

// Start opens a new session: microphone, both clock domains, the speaker,
// then the transport. It returns once the transport is open or setup failed;
// on failure every acquired resource is released and the state is ERROR.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.attempt++
	attempt := c.attempt
	c.sessionID = observability.NewCorrelationID()
	c.log = observability.WithSessionID(c.baseLog, c.sessionID)
	c.metrics = observability.NewSessionMetrics()
	c.metrics.RecordSessionStart()
	c.live = true
	c.history = nil
	c.resetPartialsLocked()
	c.setErrorLocked("")
	c.setStateLocked(StateConnecting)
	c.log.Info().Msg("starting session")
	c.unlockAndNotify()

	if err := c.checkDeps(); err != nil {
		return c.failStart(attempt, err)
	}
	if err := c.mic.Available(); err != nil {
		return c.failStart(attempt, err)
	}

	stream, err := c.mic.Open(ctx, c.cfg.Capture)
	if err != nil {
		return c.failStart(attempt, fmt.Errorf("failed to open microphone: %w", err))
	}

	c.mu.Lock()
	if c.attempt != attempt {
		c.mu.Unlock()
		_ = stream.Stop()
		return ErrStartAborted
	}
	c.stream = stream
	c.captureClock = c.cfg.NewClock(c.cfg.Capture.SampleRate)
	c.playbackClock = c.cfg.NewClock(c.cfg.PlaybackRate)
	playbackClock := c.playbackClock
	c.mu.Unlock()

	sink, err := c.speakers(playbackClock)
	if err != nil {
		return c.failStart(attempt, fmt.Errorf("failed to open speaker: %w", err))
	}

	c.mu.Lock()
	if c.attempt != attempt {
		c.mu.Unlock()
		_ = sink.Close()
		return ErrStartAborted
	}
	c.sink = sink
	metrics := c.metrics
	c.scheduler = playback.NewScheduler(sink, playback.WithDepthObserver(metrics.SetPlaybackQueueDepth))
	c.mu.Unlock()

	transport, err := c.dialer.Dial(ctx, c.cfg.Setup)
	if err != nil {
		return c.failStart(attempt, fmt.Errorf("%w: %w", ErrTransportOpen, err))
	}

	c.mu.Lock()
	if c.attempt != attempt {
		c.mu.Unlock()
		_ = transport.Close()
		return ErrStartAborted
	}
	c.transport = transport
	c.pipeline = capture.NewPipeline(c.stream, capture.PipelineConfig{
		InputRate:   c.cfg.Capture.SampleRate,
		BlockFrames: c.cfg.BlockFrames,
		Observe:     func(n int) { metrics.RecordAudioBytes("out", int64(n)) },
		Logger:      c.log,
	})
	pipeline := c.pipeline
	c.setStateLocked(StateConnected)
	c.log.Info().Msg("session connected")
	c.unlockAndNotify()

	go c.consume(transport)
	if err := pipeline.Connect(sendTo(transport)); err != nil {
		c.log.Debug().Err(err).Msg("capture not connected")
	}
	return nil
}

// checkDeps reports a collaborator the controller was built without.
func (c *Controller) checkDeps() error {
	switch {
	case c.mic == nil:
		return fmt.Errorf("%w: no microphone configured", ErrUnsupportedEnvironment)
	case c.speakers == nil:
		return fmt.Errorf("%w: no speaker configured", ErrUnsupportedEnvironment)
	case c.dialer == nil:
		return fmt.Errorf("%w: no live endpoint configured", ErrTransportOpen)
	}
	return nil
}

// failStart tears down a start attempt that is still current. A superseded
// attempt leaves the newer session alone; whatever it stored was released by
// the Stop that superseded it.
func (c *Controller) failStart(attempt uint64, err error) error {
	c.mu.Lock()
	if c.attempt != attempt {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStartAborted, err)
	}
	c.log.Error().Err(err).Msg("session start failed")
	c.metrics.RecordError(errorType(err), "session")
	c.setErrorLocked("Failed to start conversation: " + err.Error())
	res := c.teardownLocked(StateError, "error")
	c.unlockAndNotify()

	res.release()
	return err
}

// Stop closes and discards the transport, then cleans up. It is safe to call
// in any state, including while Start is still pending, which invalidates
// that attempt.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.attempt++
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		done := make(chan struct{})
		go func() {
			_ = t.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.log.Warn().Err(ctx.Err()).Msg("gave up waiting for transport close")
		}
	}

	c.cleanup("stopped")
	return nil
}

// Cleanup releases every owned resource and returns to IDLE. It is
// idempotent and safe before any Start. The error message is left as is.
func (c *Controller) Cleanup() {
	c.cleanup("stopped")
}

func (c *Controller) cleanup(outcome string) {
	c.mu.Lock()
	res := c.teardownLocked(StateIdle, outcome)
	c.unlockAndNotify()
	res.release()
}

// Dispatch routes one inbound event as if the current transport delivered it.
func (c *Controller) Dispatch(ev live.Event) {
	c.mu.Lock()
	res := c.routeLocked(ev)
	c.unlockAndNotify()
	res.release()
}

// Snapshot returns a copy of everything a presenter shows.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]transcript.Entry, len(c.history))
	copy(history, c.history)
	return Snapshot{
		State:        c.state,
		History:      history,
		UserPartial:  c.agg.Partial(transcript.User),
		ModelPartial: c.agg.Partial(transcript.Model),
		Error:        c.errMsg,
		SessionID:    c.sessionID,
	}
}

// State returns the current connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) consume(t live.Transport) {
	for ev := range t.Events() {
		c.dispatchFrom(t, ev)
	}
	// covers a close whose EventClosed could not be buffered
	c.dispatchFrom(t, live.Event{Kind: live.EventClosed})
}

func (c *Controller) dispatchFrom(t live.Transport, ev live.Event) {
	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}
	res := c.routeLocked(ev)
	c.unlockAndNotify()
	res.release()
}

func (c *Controller) routeLocked(ev live.Event) resources {
	switch ev.Kind {
	case live.EventAudio:
		c.playLocked(ev.Data)

	case live.EventInterrupted:
		if c.scheduler != nil {
			n := c.scheduler.Interrupt()
			c.metrics.RecordInterruption()
			c.log.Info().Int("stopped", n).Msg("playback interrupted")
		}

	case live.EventInputTranscription:
		c.appendPartialLocked(transcript.User, ev.Text)

	case live.EventOutputTranscription:
		c.appendPartialLocked(transcript.Model, ev.Text)

	case live.EventTurnComplete:
		entries := c.agg.CommitTurn()
		c.notifyPartialsLocked()
		if len(entries) == 0 {
			break
		}
		c.history = append(c.history, entries...)
		for _, e := range entries {
			c.metrics.RecordTurnCommitted(e.Speaker.String())
		}
		presenter := c.presenter
		c.pending = append(c.pending, func() { presenter.TranscriptCommitted(entries) })

	case live.EventError:
		message := ev.Message
		if message == "" {
			message = "Unknown error"
		}
		err := fmt.Errorf("%w: %s", ErrTransportRuntime, message)
		c.log.Error().Err(err).Msg("session failed")
		c.metrics.RecordError("transport_runtime", "live")
		c.setErrorLocked("An error occurred: " + message)
		return c.teardownLocked(StateError, "error")

	case live.EventClosed:
		c.log.Info().Msg("session closed by remote")
		return c.teardownLocked(StateIdle, "closed")
	}
	return resources{}
}

func (c *Controller) playLocked(data string) {
	if c.scheduler == nil || c.playbackClock == nil {
		return
	}

	raw, err := audio.DecodeTransportText(data)
	var chunk audio.Chunk
	if err == nil {
		chunk, err = audio.DecodeRemoteAudio(raw, c.cfg.PlaybackRate, c.cfg.RemoteChannels)
	}
	if err != nil {
		c.metrics.RecordDecodeError()
		c.log.Warn().Err(err).Msg("dropping malformed audio chunk")
		return
	}

	startAt, err := c.scheduler.Enqueue(chunk, c.playbackClock.Now())
	if err != nil {
		c.metrics.RecordError("playback", "scheduler")
		c.log.Error().Err(err).Msg("failed to schedule audio chunk")
		return
	}
	c.metrics.RecordChunkScheduled()
	c.metrics.RecordAudioBytes("in", int64(len(chunk.Data)))
	c.log.Debug().Float64("start_at", startAt).Int("bytes", len(chunk.Data)).Msg("audio chunk scheduled")
}

func (c *Controller) appendPartialLocked(speaker transcript.Speaker, text string) {
	partial := c.agg.AppendPartial(speaker, text)
	presenter := c.presenter
	c.pending = append(c.pending, func() { presenter.PartialTranscript(speaker, partial) })
}

// teardownLocked detaches every resource, resets partials, records the
// session outcome, and moves to final. Any Start still in flight is
// invalidated. The caller releases the returned resources after unlocking.
func (c *Controller) teardownLocked(final ConnectionState, outcome string) resources {
	c.attempt++
	res := resources{
		scheduler:     c.scheduler,
		pipeline:      c.pipeline,
		stream:        c.stream,
		captureClock:  c.captureClock,
		playbackClock: c.playbackClock,
		sink:          c.sink,
		transport:     c.transport,
		log:           c.log,
	}
	c.scheduler = nil
	c.pipeline = nil
	c.stream = nil
	c.captureClock = nil
	c.playbackClock = nil
	c.sink = nil
	c.transport = nil

	c.resetPartialsLocked()
	if c.live {
		c.metrics.RecordSessionEnd(outcome)
		c.live = false
	}
	c.setStateLocked(final)
	return res
}

func (c *Controller) resetPartialsLocked() {
	c.agg.Reset()
	c.notifyPartialsLocked()
}

func (c *Controller) notifyPartialsLocked() {
	presenter := c.presenter
	user, model := c.agg.Partial(transcript.User), c.agg.Partial(transcript.Model)
	c.pending = append(c.pending, func() {
		presenter.PartialTranscript(transcript.User, user)
		presenter.PartialTranscript(transcript.Model, model)
	})
}

func (c *Controller) setStateLocked(state ConnectionState) {
	if c.state == state {
		return
	}
	c.state = state
	presenter := c.presenter
	c.pending = append(c.pending, func() { presenter.StateChanged(state) })
}

func (c *Controller) setErrorLocked(message string) {
	if c.errMsg == message {
		return
	}
	c.errMsg = message
	presenter := c.presenter
	c.pending = append(c.pending, func() { presenter.ErrorChanged(message) })
}

// unlockAndNotify releases mu and delivers queued notifications. One caller
// at a time drains the queue; a caller arriving while another drains leaves
// its notifications queued behind the ones already there.
func (c *Controller) unlockAndNotify() {
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

func sendTo(t live.Transport) capture.SendFunc {
	return func(p capture.Payload) error {
		err := t.Send(live.Media{MIMEType: p.MIMEType, Data: p.Data})
		if errors.Is(err, live.ErrClosed) {
			return ErrTransportClosed
		}
		return err
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedEnvironment):
		return "unsupported_environment"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrTransportOpen):
		return "transport_open"
	default:
		return "setup"
	}
}
