package zsl

import (
	"sync"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/monitoring"
)

// AutoFlashFilter requires AE convergence only while the scene may need
// flash. Once AE has reported converged, later searching frames are treated
// as converged until a flash-required frame is seen. This trades exposure
// accuracy for shutter latency.
type AutoFlashFilter struct {
	requireAF bool

	mu                  sync.Mutex
	convergenceRequired bool
	lastFrameNumber     int64
}

// NewAutoFlashFilter returns a filter that starts out requiring convergence.
func NewAutoFlashFilter(requireAF bool) *AutoFlashFilter {
	return &AutoFlashFilter{
		requireAF:           requireAF,
		convergenceRequired: true,
		lastFrameNumber:     -1,
	}
}

// Accepts implements Filter.
func (f *AutoFlashFilter) Accepts(md *camera.Metadata) bool {
	if md == nil {
		return false
	}
	f.mu.Lock()
	required := f.convergenceRequired
	f.mu.Unlock()

	view := md
	if !required && md.AEState != nil && *md.AEState == camera.AESearching {
		view = md.WithAEState(camera.AEConverged)
	}
	return IsAcceptable(view, f.requireAF, true)
}

// OnMetadataUpdate feeds one metadata record from the capture stream.
// Records whose frame number is not newer than the last one seen are
// ignored, so out-of-order delivery is harmless.
func (f *AutoFlashFilter) OnMetadataUpdate(md *camera.Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if md.FrameNumber <= f.lastFrameNumber {
		return
	}
	f.lastFrameNumber = md.FrameNumber

	if md.AEState == nil {
		return
	}
	was := f.convergenceRequired
	switch *md.AEState {
	case camera.AEFlashRequired:
		f.convergenceRequired = true
	case camera.AEConverged:
		f.convergenceRequired = false
	}
	if was != f.convergenceRequired {
		monitoring.Logf("[zsl] AE convergence required=%t (frame %d, ae=%s)",
			f.convergenceRequired, md.FrameNumber, md.AEState)
	}
}

// ConvergenceRequired reports the tracked flag.
func (f *AutoFlashFilter) ConvergenceRequired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convergenceRequired
}

// LastFrameNumber returns the newest frame number processed.
func (f *AutoFlashFilter) LastFrameNumber() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFrameNumber
}
