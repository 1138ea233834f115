package audio

import (
	"sync"
	"time"
)

// Clock is an audio clock domain: a monotonically advancing time base, in
// seconds, tied to one sample rate. The capture side and the playback side of
// a session each own an independent Clock.
type Clock interface {
	Now() float64
	SampleRate() int
	Close() error
	Closed() bool
}

// WallClock is a Clock driven by the host's monotonic clock. Now reports the
// seconds elapsed since the domain was opened and stops advancing once it is
// closed.
type WallClock struct {
	sampleRate int
	opened     time.Time

	mu       sync.RWMutex
	closedAt time.Time
	closed   bool
}

// NewWallClock opens a clock domain running at sampleRate.
func NewWallClock(sampleRate int) *WallClock {
	return &WallClock{sampleRate: sampleRate, opened: time.Now()}
}

func (c *WallClock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return c.closedAt.Sub(c.opened).Seconds()
	}
	return time.Since(c.opened).Seconds()
}

func (c *WallClock) SampleRate() int {
	return c.sampleRate
}

// Close freezes the clock. Closing twice is a no-op.
func (c *WallClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closedAt = time.Now()
	return nil
}

func (c *WallClock) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
