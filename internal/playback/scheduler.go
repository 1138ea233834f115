package playback

import (
	"fmt"
	"sync"

	"github.com/lexiqai/live-voice/internal/audio"
)

// Scheduler places chunks back to back on the playback clock. Each chunk
// starts at max(cursor, now) and advances the cursor by its duration, so
// chunks play in append order without overlap and without gaps unless the
// caller falls behind the clock.
//
// Ended notifications arrive on other goroutines; the scheduler ignores any
// for units it no longer owns.
type Scheduler struct {
	out Output

	mu      sync.Mutex
	cursor  float64
	nextID  uint64
	sources map[uint64]Source
	onDepth func(int)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDepthObserver reports the number of outstanding units after every
// change. The observer runs with the scheduler locked and must not call back.
func WithDepthObserver(fn func(depth int)) Option {
	return func(s *Scheduler) { s.onDepth = fn }
}

func NewScheduler(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:     out,
		sources: make(map[uint64]Source),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue schedules chunk and returns the time it will start.
func (s *Scheduler) Enqueue(chunk audio.Chunk, now float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := s.cursor
	if now > startAt {
		startAt = now
	}

	s.nextID++
	id := s.nextID
	src, err := s.out.Play(chunk, startAt, func() { s.ended(id) })
	if err != nil {
		return 0, fmt.Errorf("failed to schedule playback: %w", err)
	}

	s.cursor = startAt + chunk.Duration()
	s.sources[id] = src
	s.reportLocked()
	return startAt, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return
	}
	delete(s.sources, id)
	s.reportLocked()
}

// Interrupt stops every scheduled unit, discards pending output, and resets
// the cursor so the next chunk starts immediately. It returns the number of
// units stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sources)
	for id, src := range s.sources {
		src.Stop()
		delete(s.sources, id)
	}
	s.out.Flush()
	s.cursor = 0
	s.reportLocked()
	return n
}

// FlushAll is Interrupt for teardown.
func (s *Scheduler) FlushAll() {
	s.Interrupt()
}

// Active returns the number of units scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Cursor returns the time the next chunk would start if the caller is on time.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) reportLocked() {
	if s.onDepth != nil {
		s.onDepth(len(s.sources))
	}
}
