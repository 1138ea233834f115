package playback

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/audio"
	"github.com/lexiqai/live-voice/internal/observability"
)

// ErrSpeakerClosed is returned by Play after Close.
var ErrSpeakerClosed = errors.New("speaker closed")

const (
	// writeLead hands PCM to the device this long before its start time so
	// the device never starves between back-to-back units.
	writeLead      = 150 * time.Millisecond
	drainChunkSize = 4096
)

// Speaker is an Output that feeds a PCM16 byte sink, typically a player
// process's stdin, at the times the scheduler asks for. Scheduled bytes pass
// through a ring buffer so Flush can drop what the sink has not consumed.
type Speaker struct {
	clock audio.Clock
	sink  io.Writer
	ring  *audio.RingBuffer
	log   zerolog.Logger

	mu     sync.Mutex
	closed bool

	wake      chan struct{}
	done      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

func NewSpeaker(clock audio.Clock, sink io.Writer, bufferBytes int, logger zerolog.Logger) *Speaker {
	if bufferBytes <= 0 {
		bufferBytes = clock.SampleRate() * 2 * 20
	}
	s := &Speaker{
		clock:   clock,
		sink:    sink,
		ring:    audio.NewRingBuffer(bufferBytes),
		log:     observability.WithComponent(logger, "speaker"),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *Speaker) Play(chunk audio.Chunk, at float64, onEnded func()) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSpeakerClosed
	}

	delay := time.Duration((at - s.clock.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	writeAt := delay - writeLead
	if writeAt < 0 {
		writeAt = 0
	}
	endAt := delay + time.Duration(chunk.Duration()*float64(time.Second))

	src := &speakerSource{speaker: s, data: chunk.Data}
	src.write = time.AfterFunc(writeAt, src.deliver)
	src.end = time.AfterFunc(endAt, func() {
		if src.settled.CompareAndSwap(false, true) && onEnded != nil {
			onEnded()
		}
	})
	return src, nil
}

// Flush drops every byte not yet written to the sink.
func (s *Speaker) Flush() {
	s.ring.Clear()
}

// Close stops the drain loop. Units still scheduled write into a ring nobody
// reads; callers flush the scheduler first.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		<-s.drained
		s.ring.Clear()
	})
	return nil
}

func (s *Speaker) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Speaker) drain() {
	defer close(s.drained)

	buf := make([]byte, drainChunkSize)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for !s.ring.IsEmpty() {
			n := s.ring.Read(buf)
			if n == 0 {
				break
			}
			if _, err := s.sink.Write(buf[:n]); err != nil {
				s.log.Error().Err(err).Msg("playback sink failed")
				s.ring.Clear()
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
		}
	}
}

type speakerSource struct {
	speaker *Speaker
	data    []byte
	write   *time.Timer
	end     *time.Timer
	settled atomic.Bool

	mu      sync.Mutex
	stopped bool
}

// deliver hands the unit's PCM to the ring unless the unit was stopped. It
// holds mu so a Stop that returns before a Flush keeps the unit out of the
// ring even when the write timer had already fired.
func (src *speakerSource) deliver() {
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.stopped {
		return
	}

	s := src.speaker
	if n := s.ring.Write(src.data); n < len(src.data) {
		s.log.Warn().Int("dropped", len(src.data)-n).Msg("playback buffer full")
	}
	s.signal()
}

func (src *speakerSource) Stop() {
	src.write.Stop()
	src.end.Stop()

	src.mu.Lock()
	src.stopped = true
	src.mu.Unlock()
	// a stopped unit never reports completion
	src.settled.Store(true)
}
