package camera

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_CloseRunsReleaseOnce(t *testing.T) {
	released := 0
	f := NewFrame(42, []byte{1, 2, 3}, 2, 1, func(*Frame) { released++ })
	assert.Equal(t, int64(42), f.Timestamp())
	assert.False(t, f.Closed())

	f.Close()
	assert.True(t, f.Closed())
	assert.Equal(t, 1, released)

	assert.Panics(t, func() { f.Close() }, "double close must panic")
	assert.Equal(t, 1, released)
}

func TestMetadata_WithAEStateLeavesOriginal(t *testing.T) {
	md := &Metadata{Timestamp: 10, FrameNumber: 3, AEState: AE(AESearching), AFState: AF(AFFocusedLocked)}
	view := md.WithAEState(AEConverged)

	assert.Equal(t, AESearching, *md.AEState)
	assert.Equal(t, AEConverged, *view.AEState)
	assert.Same(t, md.AFState, view.AFState)
	assert.Equal(t, md.FrameNumber, view.FrameNumber)
}

func TestMetadata_JSONStateNames(t *testing.T) {
	md := Metadata{Timestamp: 500, FrameNumber: 7, LensState: Lens(LensStationary), AEState: AE(AEFlashRequired)}
	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp_ns":500,"frame_number":7,"lens_state":"stationary","ae_state":"flash-required"}`, string(data))

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(md, back); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	var bad AFState
	assert.Error(t, bad.UnmarshalText([]byte("blurry")))
}

func TestStateString_Unknown(t *testing.T) {
	assert.Equal(t, "unknown(99)", AEState(99).String())
	assert.Equal(t, "passive-unfocused", AFPassiveUnfocused.String())
	assert.Equal(t, "moving", LensMoving.String())
}

func TestFuture_SettlesOnce(t *testing.T) {
	f := NewFuture()
	md := &Metadata{Timestamp: 1}
	assert.True(t, f.Complete(md))
	assert.False(t, f.Fail(errors.New("late")))
	assert.False(t, f.Cancel())

	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, md, got)
}

func TestFuture_Cancel(t *testing.T) {
	f := NewFuture()
	f.Cancel()
	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFuture_GetHonoursContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_SettledBeatsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := CompletedFuture(&Metadata{FrameNumber: 9}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.FrameNumber)

	boom := errors.New("session closed")
	_, err = FailedFuture(boom).Get(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestFuture_ResolvedFromAnotherGoroutine(t *testing.T) {
	f := NewFuture()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete(&Metadata{FrameNumber: 12})
	}()

	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.FrameNumber)
	<-f.Done()
}
