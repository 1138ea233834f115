package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/live-voice/internal/audio"
	"github.com/lexiqai/live-voice/internal/capture"
	"github.com/lexiqai/live-voice/internal/live"
	"github.com/lexiqai/live-voice/internal/playback"
	"github.com/lexiqai/live-voice/internal/transcript"
)

type fakeStream struct {
	mu      sync.Mutex
	stops   int
	stopped chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{stopped: make(chan struct{})}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	<-s.stopped
	return 0, io.EOF
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stops == 0 {
		close(s.stopped)
	}
	s.stops++
	return nil
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// fakeMic hands out its stream, optionally waiting on gate first.
type fakeMic struct {
	availErr error
	openErr  error
	stream   *fakeStream
	opens    int
	gate     chan struct{}
	entered  chan struct{}
}

func (m *fakeMic) Available() error { return m.availErr }

func (m *fakeMic) Open(ctx context.Context, cfg capture.Config) (capture.Stream, error) {
	m.opens++
	if m.gate != nil {
		close(m.entered)
		<-m.gate
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.stream, nil
}

type fakeTransport struct {
	events    chan live.Event
	closeOnce sync.Once

	mu     sync.Mutex
	sent   []live.Media
	closes int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan live.Event, 16)}
}

func (t *fakeTransport) Send(m live.Media) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closes > 0 {
		return live.ErrClosed
	}
	t.sent = append(t.sent, m)
	return nil
}

func (t *fakeTransport) Events() <-chan live.Event { return t.events }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	t.closeOnce.Do(func() {
		t.events <- live.Event{Kind: live.EventClosed}
		close(t.events)
	})
	return nil
}

func (t *fakeTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// fakeDialer hands out its transport, optionally waiting on gate first.
type fakeDialer struct {
	transport *fakeTransport
	err       error
	gate      chan struct{}
	entered   chan struct{}
	setups    []live.Setup
}

func (d *fakeDialer) Dial(ctx context.Context, setup live.Setup) (live.Transport, error) {
	d.setups = append(d.setups, setup)
	if d.gate != nil {
		close(d.entered)
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

type fakeUnit struct {
	mu      sync.Mutex
	stopped bool
}

func (u *fakeUnit) Stop() {
	u.mu.Lock()
	u.stopped = true
	u.mu.Unlock()
}

func (u *fakeUnit) Stopped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stopped
}

type scheduledUnit struct {
	at       float64
	duration float64
	unit     *fakeUnit
	onEnded  func()
}

type fakeSink struct {
	mu      sync.Mutex
	units   []scheduledUnit
	flushes int
	closes  int
}

func (s *fakeSink) Play(chunk audio.Chunk, at float64, onEnded func()) (playback.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &fakeUnit{}
	s.units = append(s.units, scheduledUnit{at: at, duration: chunk.Duration(), unit: u, onEnded: onEnded})
	return u, nil
}

func (s *fakeSink) Flush() {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Units() []scheduledUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledUnit(nil), s.units...)
}

type fakeClock struct {
	mu     sync.Mutex
	now    float64
	rate   int
	closed bool
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now float64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *fakeClock) SampleRate() int { return c.rate }

func (c *fakeClock) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordingPresenter struct {
	mu     sync.Mutex
	states []ConnectionState
	errs   []string
	turns  [][]transcript.Entry
	events []string

	// onState runs before a state change is recorded.
	onState func(ConnectionState)
}

func (p *recordingPresenter) StateChanged(s ConnectionState) {
	if p.onState != nil {
		p.onState(s)
	}
	p.mu.Lock()
	p.states = append(p.states, s)
	p.events = append(p.events, "state:"+string(s))
	p.mu.Unlock()
}

func (p *recordingPresenter) PartialTranscript(speaker transcript.Speaker, text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	p.events = append(p.events, "partial:"+speaker.String()+":"+text)
	p.mu.Unlock()
}

func (p *recordingPresenter) TranscriptCommitted(entries []transcript.Entry) {
	p.mu.Lock()
	p.turns = append(p.turns, entries)
	p.mu.Unlock()
}

func (p *recordingPresenter) ErrorChanged(msg string) {
	p.mu.Lock()
	p.errs = append(p.errs, msg)
	p.mu.Unlock()
}

func (p *recordingPresenter) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPresenter) States() []ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectionState(nil), p.states...)
}

type harness struct {
	c         *Controller
	mic       *fakeMic
	dialer    *fakeDialer
	transport *fakeTransport
	sink      *fakeSink
	clocks    map[int]*fakeClock
	presenter *recordingPresenter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mic:       &fakeMic{stream: newFakeStream()},
		transport: newFakeTransport(),
		sink:      &fakeSink{},
		clocks:    map[int]*fakeClock{},
		presenter: &recordingPresenter{},
	}
	h.dialer = &fakeDialer{transport: h.transport}

	var mu sync.Mutex
	h.c = NewController(Deps{
		Microphone: h.mic,
		Dialer:     h.dialer,
		Speakers:   func(audio.Clock) (playback.Sink, error) { return h.sink, nil },
		Presenter:  h.presenter,
	}, Config{
		Setup:  live.Setup{Model: "test-model", Voice: "Charon"},
		Labels: transcript.Labels{User: "You", Model: "God"},
		NewClock: func(rate int) audio.Clock {
			mu.Lock()
			defer mu.Unlock()
			clk := &fakeClock{rate: rate}
			h.clocks[rate] = clk
			return clk
		},
		Logger: zerolog.Nop(),
	})
	return h
}

// audioEvent carries d seconds of 24 kHz mono PCM16.
func audioEvent(d float64) live.Event {
	frames := int(d * 24000)
	return live.Event{Kind: live.EventAudio, Data: audio.EncodeTransportText(make([]byte, frames*2))}
}

func (h *harness) active() int {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.scheduler == nil {
		return 0
	}
	return h.c.scheduler.Active()
}

func TestStart_Connects(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.Start(context.Background()))

	snap := h.c.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Empty(t, snap.Error)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, []ConnectionState{StateConnecting, StateConnected}, h.presenter.States())
	require.Len(t, h.dialer.setups, 1)
	assert.Equal(t, "test-model", h.dialer.setups[0].Model)
	assert.Equal(t, 16000, h.clocks[16000].SampleRate())
	assert.Equal(t, 24000, h.clocks[24000].SampleRate())

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestStart_RejectsWhileActive(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	err := h.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, 1, h.mic.opens)

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestStart_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.mic.openErr = capture.ErrPermissionDenied

	err := h.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	snap := h.c.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, snap.Error, "Failed to start conversation: ")
	assert.Contains(t, snap.Error, "permission denied")
	assert.Nil(t, h.c.stream)
	assert.Equal(t, 0, h.active())
	assert.Empty(t, h.dialer.setups)
}

func TestStart_UnsupportedEnvironment(t *testing.T) {
	h := newHarness(t)
	h.mic.availErr = capture.ErrUnsupportedEnvironment

	err := h.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedEnvironment)
	assert.Equal(t, StateError, h.c.State())
	assert.Equal(t, 0, h.mic.opens)
}

func TestStart_TransportOpenFailureReleasesEverything(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("handshake refused")

	err := h.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrTransportOpen)

	snap := h.c.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "Failed to start conversation: failed to open live session: handshake refused", snap.Error)
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Equal(t, 1, h.sink.closes)
	assert.True(t, h.clocks[16000].Closed())
	assert.True(t, h.clocks[24000].Closed())
}

func TestStart_ClearsPreviousErrorAndHistory(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))
	h.c.Dispatch(live.Event{Kind: live.EventInputTranscription, Text: "hi"})
	h.c.Dispatch(live.Event{Kind: live.EventTurnComplete})
	h.c.Dispatch(live.Event{Kind: live.EventError, Message: "boom"})
	require.Equal(t, StateError, h.c.State())
	require.Len(t, h.c.Snapshot().History, 1)

	h.mic.stream = newFakeStream()
	h.transport = newFakeTransport()
	h.dialer.transport = h.transport
	require.NoError(t, h.c.Start(context.Background()))

	snap := h.c.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.History)

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestDispatch_FiveChunksPlayGapless(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	for i := 0; i < 5; i++ {
		h.c.Dispatch(audioEvent(0.1))
		assert.LessOrEqual(t, h.active(), 5)
	}
	assert.Equal(t, 5, h.active())

	units := h.sink.Units()
	require.Len(t, units, 5)
	for i := 1; i < len(units); i++ {
		prevEnd := units[i-1].at + units[i-1].duration
		assert.GreaterOrEqual(t, units[i].at+1e-9, prevEnd)
	}

	for _, u := range units {
		u.onEnded()
	}
	assert.Equal(t, 0, h.active())

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestDispatch_InterruptMidPlayback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	for i := 0; i < 3; i++ {
		h.c.Dispatch(audioEvent(0.2))
	}
	h.clocks[24000].Set(0.25)

	h.c.Dispatch(live.Event{Kind: live.EventInterrupted})

	assert.Equal(t, 0, h.active())
	for _, u := range h.sink.Units() {
		assert.True(t, u.unit.Stopped())
	}
	h.c.mu.Lock()
	cursor := h.c.scheduler.Cursor()
	h.c.mu.Unlock()
	assert.Equal(t, 0.0, cursor)

	h.c.Dispatch(audioEvent(0.1))
	units := h.sink.Units()
	require.Len(t, units, 4)
	assert.Equal(t, 0.25, units[3].at)
	assert.Equal(t, StateConnected, h.c.State())

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestDispatch_MalformedAudioIsDropped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	h.c.Dispatch(live.Event{Kind: live.EventAudio, Data: "!!not base64!!"})
	h.c.Dispatch(live.Event{Kind: live.EventAudio, Data: audio.EncodeTransportText([]byte{1, 2, 3})})

	assert.Equal(t, StateConnected, h.c.State())
	assert.Empty(t, h.sink.Units())

	h.c.Dispatch(audioEvent(0.05))
	assert.Len(t, h.sink.Units(), 1)

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestDispatch_TranscriptTurns(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	h.c.Dispatch(live.Event{Kind: live.EventInputTranscription, Text: "Hel"})
	h.c.Dispatch(live.Event{Kind: live.EventInputTranscription, Text: "lo "})
	h.c.Dispatch(live.Event{Kind: live.EventOutputTranscription, Text: " Welcome."})

	snap := h.c.Snapshot()
	assert.Equal(t, "Hello ", snap.UserPartial)
	assert.Equal(t, " Welcome.", snap.ModelPartial)

	h.c.Dispatch(live.Event{Kind: live.EventTurnComplete})

	snap = h.c.Snapshot()
	assert.Empty(t, snap.UserPartial)
	assert.Empty(t, snap.ModelPartial)
	assert.Equal(t, []transcript.Entry{
		{Speaker: transcript.User, Label: "You", Text: "Hello"},
		{Speaker: transcript.Model, Label: "God", Text: "Welcome."},
	}, snap.History)
	require.Len(t, h.presenter.turns, 1)

	// an empty turn commits nothing
	h.c.Dispatch(live.Event{Kind: live.EventTurnComplete})
	assert.Len(t, h.c.Snapshot().History, 2)

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestDispatch_TransportErrorFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))
	h.c.Dispatch(audioEvent(0.1))

	h.c.Dispatch(live.Event{Kind: live.EventError, Message: "quota exceeded"})

	snap := h.c.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "An error occurred: quota exceeded", snap.Error)
	assert.Equal(t, 0, h.active())
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Equal(t, 1, h.sink.closes)
	assert.Equal(t, 1, h.transport.Closes())
	assert.True(t, h.sink.Units()[0].unit.Stopped())
}

func TestDispatch_ClosedReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	h.c.Dispatch(live.Event{Kind: live.EventClosed})

	assert.Equal(t, StateIdle, h.c.State())
	assert.Empty(t, h.c.Snapshot().Error)
	assert.Equal(t, 1, h.mic.stream.Stops())
}

func TestConsume_RemoteCloseReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Start(context.Background()))

	h.transport.events <- live.Event{Kind: live.EventOutputTranscription, Text: "bye"}
	h.transport.events <- live.Event{Kind: live.EventClosed}

	assert.Eventually(t, func() bool { return h.c.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)
	// resources are released just after the state change
	assert.Eventually(t, func() bool { return h.mic.stream.Stops() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestCapture_ForwardsToTransport(t *testing.T) {
	h := newHarness(t)
	stream := &chunkStream{data: make([]byte, 4096*4)}
	h.mic.stream = nil
	h.c.mic = &staticMic{stream: stream}

	require.NoError(t, h.c.Start(context.Background()))

	assert.Eventually(t, func() bool {
		h.transport.mu.Lock()
		defer h.transport.mu.Unlock()
		return len(h.transport.sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.transport.mu.Lock()
	sent := h.transport.sent[0]
	h.transport.mu.Unlock()
	assert.Equal(t, capture.MIMEType, sent.MIMEType)
	raw, err := audio.DecodeTransportText(sent.Data)
	require.NoError(t, err)
	assert.Len(t, raw, 4096*2)

	require.NoError(t, h.c.Stop(context.Background()))
}

func TestCleanup_IdempotentAndSafeBeforeStart(t *testing.T) {
	h := newHarness(t)

	assert.NotPanics(t, h.c.Cleanup)
	assert.Equal(t, StateIdle, h.c.State())

	require.NoError(t, h.c.Start(context.Background()))
	h.c.Dispatch(audioEvent(0.1))

	h.c.Cleanup()
	h.c.Cleanup()

	assert.Equal(t, StateIdle, h.c.State())
	assert.Equal(t, 0, h.active())
	assert.Nil(t, h.c.stream)
	assert.Nil(t, h.c.transport)
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Equal(t, 1, h.sink.closes)
}

func TestStop_IsAlwaysSafe(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.Stop(context.Background()))
	assert.Equal(t, StateIdle, h.c.State())

	require.NoError(t, h.c.Start(context.Background()))
	require.NoError(t, h.c.Stop(context.Background()))
	require.NoError(t, h.c.Stop(context.Background()))

	assert.Equal(t, StateIdle, h.c.State())
	assert.Equal(t, 1, h.transport.Closes())
}

func TestStop_DuringPendingStart(t *testing.T) {
	h := newHarness(t)
	h.dialer.gate = make(chan struct{})
	h.dialer.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(context.Background()) }()

	<-h.dialer.entered
	assert.Equal(t, StateConnecting, h.c.State())

	require.NoError(t, h.c.Stop(context.Background()))
	assert.Equal(t, StateIdle, h.c.State())
	assert.Equal(t, 1, h.mic.stream.Stops())

	close(h.dialer.gate)
	err := <-errc
	assert.ErrorIs(t, err, ErrStartAborted)

	// the late transport is closed and nothing else was acquired
	assert.Equal(t, 1, h.transport.Closes())
	assert.Equal(t, StateIdle, h.c.State())
	assert.Nil(t, h.c.transport)
	assert.Equal(t, 0, h.active())
}

func TestCleanup_DuringPendingDial(t *testing.T) {
	h := newHarness(t)
	h.dialer.gate = make(chan struct{})
	h.dialer.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(context.Background()) }()

	<-h.dialer.entered
	h.c.Cleanup()
	assert.Equal(t, StateIdle, h.c.State())

	close(h.dialer.gate)
	err := <-errc
	assert.ErrorIs(t, err, ErrStartAborted)

	snap := h.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 1, h.transport.Closes())
	assert.Nil(t, h.c.transport)
	assert.Nil(t, h.c.pipeline)
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Equal(t, 1, h.sink.closes)
}

func TestStop_DuringPendingMicrophone(t *testing.T) {
	h := newHarness(t)
	h.mic.gate = make(chan struct{})
	h.mic.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(context.Background()) }()

	<-h.mic.entered
	require.NoError(t, h.c.Stop(context.Background()))
	assert.Equal(t, StateIdle, h.c.State())

	close(h.mic.gate)
	err := <-errc
	assert.ErrorIs(t, err, ErrStartAborted)

	snap := h.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)
	// the late stream is stopped by the aborted start and nothing else
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Nil(t, h.c.stream)
	assert.Empty(t, h.dialer.setups)
	assert.Empty(t, h.sink.Units())
	assert.Equal(t, 0, h.sink.closes)
}

func TestCleanup_DuringPendingMicrophone(t *testing.T) {
	h := newHarness(t)
	h.mic.gate = make(chan struct{})
	h.mic.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- h.c.Start(context.Background()) }()

	<-h.mic.entered
	h.c.Cleanup()

	close(h.mic.gate)
	assert.ErrorIs(t, <-errc, ErrStartAborted)

	assert.Equal(t, StateIdle, h.c.State())
	assert.Empty(t, h.c.Snapshot().Error)
	assert.Equal(t, 1, h.mic.stream.Stops())
	assert.Nil(t, h.c.stream)
	assert.Empty(t, h.dialer.setups)
}

func TestStart_MissingCollaborators(t *testing.T) {
	speakers := func(audio.Clock) (playback.Sink, error) { return &fakeSink{}, nil }
	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{"microphone", Deps{Dialer: &fakeDialer{}, Speakers: speakers}, ErrUnsupportedEnvironment},
		{"speaker", Deps{Microphone: &fakeMic{stream: newFakeStream()}, Dialer: &fakeDialer{}}, ErrUnsupportedEnvironment},
		{"dialer", Deps{Microphone: &fakeMic{stream: newFakeStream()}, Speakers: speakers}, ErrTransportOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.deps, Config{Logger: zerolog.Nop()})

			err := c.Start(context.Background())
			assert.ErrorIs(t, err, tt.want)

			snap := c.Snapshot()
			assert.Equal(t, StateError, snap.State)
			assert.Contains(t, snap.Error, "Failed to start conversation: ")
			assert.Nil(t, c.stream)
			assert.Nil(t, c.sink)
		})
	}
}

func TestPresenter_NotificationsKeepOrder(t *testing.T) {
	h := newHarness(t)
	h.presenter.onState = func(s ConnectionState) {
		if s == StateConnected {
			// a change raised while CONNECTED is still being presented
			h.c.Dispatch(live.Event{Kind: live.EventInputTranscription, Text: "hi"})
		}
	}

	require.NoError(t, h.c.Start(context.Background()))

	assert.Equal(t, []string{"state:CONNECTING", "state:CONNECTED", "partial:user:hi"}, h.presenter.Events())
	assert.Equal(t, "hi", h.c.Snapshot().UserPartial)

	require.NoError(t, h.c.Stop(context.Background()))
}

type chunkStream struct {
	mu   sync.Mutex
	data []byte
	done chan struct{}
	once sync.Once
}

func (s *chunkStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.data) > 0 {
		n := copy(p, s.data)
		s.data = s.data[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.stopCh()
	return 0, io.EOF
}

func (s *chunkStream) stopCh() chan struct{} {
	s.once.Do(func() { s.done = make(chan struct{}) })
	return s.done
}

func (s *chunkStream) Stop() error {
	ch := s.stopCh()
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

type staticMic struct {
	stream capture.Stream
}

func (m *staticMic) Available() error { return nil }

func (m *staticMic) Open(context.Context, capture.Config) (capture.Stream, error) {
	return m.stream, nil
}
