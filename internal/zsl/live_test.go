package zsl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/camera/metapool"
	"github.com/banshee-data/zerolag/internal/camera/ringbuffer"
)

func TestLiveCapture_ServesNextFrame(t *testing.T) {
	t.Parallel()

	ring := ringbuffer.New(4, nil)
	pool := metapool.New(8)
	triggered := 0
	live := &LiveCaptureCommand{
		Buffer:  ring,
		Pool:    pool,
		Timeout: time.Second,
		Trigger: func() {
			triggered++
			go func() {
				time.Sleep(5 * time.Millisecond)
				pool.Put(goodMetadata(900, 9))
				ring.Add(camera.NewFrame(900, nil, 0, 0, nil))
			}()
		},
	}

	saver := &fakeSaver{}
	exposed := 0
	require.NoError(t, live.Run(context.Background(), func() { exposed++ }, saver))

	assert.Equal(t, 1, triggered)
	assert.Equal(t, 1, exposed)
	assert.Equal(t, 1, saver.closes)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, int64(900), saver.saved[0].img.Timestamp())
	assert.Equal(t, int64(9), saver.saved[0].md.FrameNumber)
}

func TestLiveCapture_Timeout(t *testing.T) {
	t.Parallel()

	live := &LiveCaptureCommand{Buffer: ringbuffer.New(4, nil), Pool: metapool.New(4), Timeout: 5 * time.Millisecond}
	saver := &fakeSaver{}

	err := live.Run(context.Background(), nil, saver)
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.Equal(t, 1, saver.closes)
	assert.Empty(t, saver.saved)
}

func TestLiveCapture_ClosedBufferIsSilent(t *testing.T) {
	t.Parallel()

	ring := ringbuffer.New(4, nil)
	ring.Close()
	live := &LiveCaptureCommand{Buffer: ring, Pool: metapool.New(4)}
	saver := &fakeSaver{}

	require.NoError(t, live.Run(context.Background(), nil, saver))
	assert.Equal(t, 1, saver.closes)
}

func TestLiveCapture_ContextCancelled(t *testing.T) {
	t.Parallel()

	live := &LiveCaptureCommand{Buffer: ringbuffer.New(4, nil), Pool: metapool.New(4), Timeout: time.Minute}
	saver := &fakeSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := live.Run(ctx, nil, saver)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, saver.closes)
}

func TestCommand_FallsBackToLiveCapture(t *testing.T) {
	t.Parallel()

	ring := ringbuffer.New(8, nil)
	pool := metapool.New(16)
	stale := camera.NewFrame(100, nil, 0, 0, nil)
	ring.Add(stale)
	pool.Put(badMetadata(100, 1))

	live := &LiveCaptureCommand{
		Buffer:  ring,
		Pool:    pool,
		Timeout: time.Second,
		Trigger: func() {
			pool.Put(badMetadata(200, 2))
			ring.Add(camera.NewFrame(200, nil, 0, 0, nil))
		},
	}
	cmd := newTestCommand(t, ring, pool, live, time.Second)

	saver := &fakeSaver{}
	d, err := cmd.Capture(context.Background(), nil, saver)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallback, d.Outcome)
	assert.True(t, stale.Closed())
	assert.Equal(t, 1, saver.closes, "live capture closes the saver exactly once")
	require.Len(t, saver.saved, 1)
	assert.Equal(t, int64(200), saver.saved[0].img.Timestamp(), "fallback serves regardless of convergence")
}
