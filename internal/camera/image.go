// Package camera holds the frame and capture-metadata model shared by the
// ring buffer, the metadata pool and the ZSL selection engine.
package camera

import (
	"sync/atomic"
)

// Image is a handle to a single captured frame. Exactly one owner holds an
// Image at a time; the owner must call Close exactly once.
type Image interface {
	// Timestamp is the sensor timestamp in nanoseconds, in the same monotonic
	// clock domain as Metadata.Timestamp.
	Timestamp() int64

	// Close releases the underlying buffer back to its producer.
	Close()
}

// Frame is the concrete Image produced by the capture pipeline.
type Frame struct {
	Data   []byte
	Width  int
	Height int

	timestamp int64
	release   func(*Frame)
	closed    atomic.Bool
}

// NewFrame creates a frame. release, if non-nil, runs once when the frame is
// closed, so producers can recycle the buffer.
func NewFrame(timestamp int64, data []byte, width, height int, release func(*Frame)) *Frame {
	return &Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		timestamp: timestamp,
		release:   release,
	}
}

// Timestamp returns the sensor timestamp in nanoseconds.
func (f *Frame) Timestamp() int64 {
	return f.timestamp
}

// Close releases the frame. Closing a frame twice panics: two owners
// believed they held it.
func (f *Frame) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		panic("camera: frame already closed")
	}
	if f.release != nil {
		f.release(f)
	}
}

// Closed reports whether Close has been called.
func (f *Frame) Closed() bool {
	return f.closed.Load()
}
