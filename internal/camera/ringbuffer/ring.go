// Package ringbuffer implements the bounded, time-ordered queue of recently
// captured frames that zero-shutter-lag capture draws from.
package ringbuffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/monitoring"
	"github.com/banshee-data/zerolag/internal/timeutil"
)

var (
	// ErrTimeout is returned by Poll when no frame became available in time.
	ErrTimeout = errors.New("ringbuffer: poll timed out")
	// ErrClosed is returned by Poll once the buffer has been closed.
	ErrClosed = errors.New("ringbuffer: closed")
)

// Stats is a snapshot of buffer counters.
type Stats struct {
	Added    uint64 `json:"added"`
	Evicted  uint64 `json:"evicted"`
	Polled   uint64 `json:"polled"`
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
	Closed   bool   `json:"closed"`
}

// Ring holds up to capacity frames, oldest first. Adding to a full ring
// evicts and closes the oldest frame. Frames handed out by Poll belong to
// the caller.
type Ring struct {
	clock timeutil.Clock

	mu     sync.Mutex
	slots  []camera.Image
	head   int // index of the oldest frame
	size   int
	closed bool
	wake   chan struct{} // closed and replaced on every Add or Close

	added, evicted, polled uint64
}

// New creates a ring with the given capacity (minimum 1).
func New(capacity int, clock timeutil.Clock) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	if clock == nil {
		clock = timeutil.NewRealClock()
	}
	return &Ring{
		clock: clock,
		slots: make([]camera.Image, capacity),
		wake:  make(chan struct{}),
	}
}

// Add appends img as the newest frame. The ring takes ownership; if the ring
// is closed the frame is released immediately.
func (r *Ring) Add(img camera.Image) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		img.Close()
		return
	}

	var evicted camera.Image
	if r.size == len(r.slots) {
		evicted = r.slots[r.head]
		r.slots[r.head] = nil
		r.head = (r.head + 1) % len(r.slots)
		r.size--
		r.evicted++
	}
	r.slots[(r.head+r.size)%len(r.slots)] = img
	r.size++
	r.added++
	r.broadcastLocked()
	r.mu.Unlock()

	if evicted != nil {
		monitoring.Debugf("[ringbuffer] evicted frame ts=%d", evicted.Timestamp())
		evicted.Close()
	}
}

// Poll removes and returns the oldest frame. With timeout <= 0 it never
// waits. Otherwise it waits up to timeout for a frame to arrive.
func (r *Ring) Poll(ctx context.Context, timeout time.Duration) (camera.Image, error) {
	r.mu.Lock()
	img, ok, err := r.takeLocked()
	wake := r.wake
	r.mu.Unlock()
	if ok {
		return img, err
	}
	if timeout <= 0 {
		return nil, ErrTimeout
	}

	timer := r.clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-wake:
		case <-timer.C():
			r.mu.Lock()
			img, ok, err = r.takeLocked()
			r.mu.Unlock()
			if ok {
				return img, err
			}
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		r.mu.Lock()
		img, ok, err = r.takeLocked()
		wake = r.wake
		r.mu.Unlock()
		if ok {
			return img, err
		}
	}
}

// takeLocked reports ok when Poll has an answer: a frame or ErrClosed.
func (r *Ring) takeLocked() (camera.Image, bool, error) {
	if r.closed {
		return nil, true, ErrClosed
	}
	if r.size == 0 {
		return nil, false, nil
	}
	img := r.slots[r.head]
	r.slots[r.head] = nil
	r.head = (r.head + 1) % len(r.slots)
	r.size--
	r.polled++
	return img, true, nil
}

func (r *Ring) broadcastLocked() {
	close(r.wake)
	r.wake = make(chan struct{})
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Stats returns a snapshot of the buffer counters.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Added:    r.added,
		Evicted:  r.evicted,
		Polled:   r.polled,
		Buffered: r.size,
		Capacity: len(r.slots),
		Closed:   r.closed,
	}
}

// Close releases every buffered frame and wakes blocked pollers, which then
// see ErrClosed. Safe to call more than once.
func (r *Ring) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pending := make([]camera.Image, 0, r.size)
	for r.size > 0 {
		pending = append(pending, r.slots[r.head])
		r.slots[r.head] = nil
		r.head = (r.head + 1) % len(r.slots)
		r.size--
	}
	r.broadcastLocked()
	r.mu.Unlock()

	for _, img := range pending {
		img.Close()
	}
	monitoring.Logf("[ringbuffer] closed, released %d buffered frames", len(pending))
}
