package capturelog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/monitoring"
)

// DefaultMetadataWait bounds how long a Saver waits for a frame's metadata
// before journaling the frame without it.
const DefaultMetadataWait = 500 * time.Millisecond

// Saver is a zsl.ImageSaver that journals each delivered frame under one
// capture ID. Frames are finalised in the background: the metadata future
// is resolved, a captures row is written and the image is released.
type Saver struct {
	store        *Store
	captureID    string
	metadataWait time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
	saved  atomic.Int64
}

// NewSaver returns a Saver writing to store under captureID.
func (s *Store) NewSaver(captureID string, metadataWait time.Duration) *Saver {
	if metadataWait <= 0 {
		metadataWait = DefaultMetadataWait
	}
	return &Saver{store: s, captureID: captureID, metadataWait: metadataWait}
}

// CaptureID returns the ID rows are written under.
func (sv *Saver) CaptureID() string { return sv.captureID }

// AddFullSizeImage takes ownership of img and journals it once md resolves.
func (sv *Saver) AddFullSizeImage(img camera.Image, md camera.MetadataFuture) {
	if sv.closed.Load() {
		monitoring.Logf("capturelog: frame ts=%d delivered to closed saver %s", img.Timestamp(), sv.captureID)
	}
	sv.wg.Add(1)
	go func() {
		defer sv.wg.Done()
		defer img.Close()
		sv.finalise(img, md)
	}()
}

func (sv *Saver) finalise(img camera.Image, fut camera.MetadataFuture) {
	rec := Record{CaptureID: sv.captureID, Timestamp: img.Timestamp()}
	if f, ok := img.(*camera.Frame); ok {
		rec.SizeBytes = len(f.Data)
	}

	if fut == nil {
		rec.MetadataError = "no metadata future"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), sv.metadataWait)
		md, err := fut.Get(ctx)
		cancel()
		switch {
		case err != nil:
			rec.MetadataError = err.Error()
		case md == nil:
			rec.MetadataError = "metadata resolved empty"
		default:
			rec.FrameNumber = md.FrameNumber
			if md.AEState != nil {
				rec.AEState = md.AEState.String()
			}
			if md.AFState != nil {
				rec.AFState = md.AFState.String()
			}
			if md.LensState != nil {
				rec.LensState = md.LensState.String()
			}
		}
	}

	if err := sv.store.RecordCapture(rec); err != nil {
		monitoring.Logf("capturelog: %v", err)
		return
	}
	sv.saved.Add(1)
}

// Close marks the saver closed. It is safe to call more than once; frames
// already handed over are still journaled.
func (sv *Saver) Close() {
	sv.once.Do(func() {
		sv.closed.Store(true)
	})
}

// Closed reports whether Close has been called.
func (sv *Saver) Closed() bool { return sv.closed.Load() }

// Wait blocks until every delivered frame has been journaled and released.
func (sv *Saver) Wait() {
	sv.wg.Wait()
}

// Saved returns the number of frames journaled successfully.
func (sv *Saver) Saved() int64 { return sv.saved.Load() }
