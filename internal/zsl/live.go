package zsl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/zerolag/internal/camera/ringbuffer"
)

// ErrNoFrame is returned when a live capture produced no frame in time.
var ErrNoFrame = errors.New("zsl: live capture timed out waiting for a frame")

// DefaultLiveTimeout bounds the wait for a live frame when Timeout is unset.
const DefaultLiveTimeout = 2 * time.Second

// LiveCaptureCommand is the fallback path: it requests a fresh capture and
// serves the next frame the pipeline delivers, whatever its convergence
// state. It always closes the saver.
type LiveCaptureCommand struct {
	Buffer BufferQueue
	Pool   MetadataPool

	// Trigger, if set, asks the pipeline for an out-of-band frame.
	Trigger func()
	Timeout time.Duration
}

// Run implements ImageCaptureCommand.
func (l *LiveCaptureCommand) Run(ctx context.Context, expose ExposeCallback, saver ImageSaver) error {
	defer saver.Close()

	if l.Trigger != nil {
		l.Trigger()
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLiveTimeout
	}

	img, err := l.Buffer.Poll(ctx, timeout)
	switch {
	case errors.Is(err, ringbuffer.ErrClosed):
		return nil
	case errors.Is(err, ringbuffer.ErrTimeout):
		return ErrNoFrame
	case err != nil:
		return fmt.Errorf("live capture: %w", err)
	}

	if expose != nil {
		expose()
	}
	saver.AddFullSizeImage(img, l.Pool.PopFuture(img.Timestamp()))
	return nil
}
