package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring used to hand PCM from scheduled
// playback units to the device writer.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring that holds up to size-1 bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size < 2 {
		size = 2
	}
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies as much of data as fits and returns the number of bytes
// written. Bytes that do not fit are dropped by the caller's choice.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	if space := rb.spaceLocked(); n > space {
		n = space
	}

	first := n
	if tail := rb.size - rb.write; first > tail {
		first = tail
	}
	copy(rb.buffer[rb.write:], data[:first])
	copy(rb.buffer, data[first:n])
	rb.write = (rb.write + n) % rb.size

	return n
}

// Read moves up to len(data) buffered bytes into data.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	if avail := rb.availableLocked(); n > avail {
		n = avail
	}

	first := n
	if tail := rb.size - rb.read; first > tail {
		first = tail
	}
	copy(data, rb.buffer[rb.read:rb.read+first])
	copy(data[first:n], rb.buffer)
	rb.read = (rb.read + n) % rb.size

	return n
}

// Clear drops everything buffered.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if nothing is buffered.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

func (rb *RingBuffer) availableLocked() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

func (rb *RingBuffer) spaceLocked() int {
	return rb.size - rb.availableLocked() - 1 // -1 keeps full and empty distinguishable
}
