package sim

import (
	"github.com/banshee-data/zerolag/internal/camera"
)

// Phase is a stretch of frames that share the same 3A state.
type Phase struct {
	Name   string
	Frames int
	AE     camera.AEState
	AF     camera.AFState
	Lens   camera.LensState

	// DropMetadataEvery withholds the metadata of every Nth frame of the
	// phase. Zero delivers all of it.
	DropMetadataEvery int
}

// Scenario is a scripted sequence of phases that repeats once exhausted.
type Scenario []Phase

// DefaultScenario walks the camera through the states that matter for frame
// selection: a cold start, a settled scene, a dark scene that wants flash,
// and AE hunting in a scene that does not.
func DefaultScenario() Scenario {
	return Scenario{
		{Name: "warmup", Frames: 8, AE: camera.AESearching, AF: camera.AFPassiveScan, Lens: camera.LensMoving},
		{Name: "settled", Frames: 45, AE: camera.AEConverged, AF: camera.AFPassiveFocused, Lens: camera.LensStationary},
		{Name: "refocus", Frames: 6, AE: camera.AEConverged, AF: camera.AFActiveScan, Lens: camera.LensMoving},
		{Name: "locked", Frames: 30, AE: camera.AELocked, AF: camera.AFFocusedLocked, Lens: camera.LensStationary, DropMetadataEvery: 7},
		{Name: "hunting", Frames: 20, AE: camera.AESearching, AF: camera.AFFocusedLocked, Lens: camera.LensStationary},
		{Name: "lowlight", Frames: 30, AE: camera.AEFlashRequired, AF: camera.AFPassiveFocused, Lens: camera.LensStationary},
		{Name: "lowlight-hunting", Frames: 15, AE: camera.AESearching, AF: camera.AFPassiveFocused, Lens: camera.LensStationary},
	}
}

// Len returns the number of frames in one pass of the scenario.
func (s Scenario) Len() int {
	n := 0
	for _, p := range s {
		if p.Frames > 0 {
			n += p.Frames
		}
	}
	return n
}

// At returns the phase covering the given zero-based frame index and the
// frame's offset within it. An empty scenario yields a converged phase.
func (s Scenario) At(index int64) (Phase, int) {
	total := s.Len()
	if total == 0 {
		return Phase{Name: "default", AE: camera.AEConverged, AF: camera.AFFocusedLocked, Lens: camera.LensStationary}, int(index)
	}
	pos := int(index % int64(total))
	for _, p := range s {
		if p.Frames <= 0 {
			continue
		}
		if pos < p.Frames {
			return p, pos
		}
		pos -= p.Frames
	}
	// unreachable: pos < total
	return s[len(s)-1], 0
}

// metadataFor builds the record for a frame, or nil when the phase drops it.
func (p Phase) metadataFor(ts, frameNumber int64, offset int) *camera.Metadata {
	if p.DropMetadataEvery > 0 && (offset+1)%p.DropMetadataEvery == 0 {
		return nil
	}
	return &camera.Metadata{
		Timestamp:   ts,
		FrameNumber: frameNumber,
		AEState:     camera.AE(p.AE),
		AFState:     camera.AF(p.AF),
		LensState:   camera.Lens(p.Lens),
	}
}
