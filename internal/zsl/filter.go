package zsl

import (
	"github.com/banshee-data/zerolag/internal/camera"
)

// Filter decides whether a buffered frame is good enough to serve without a
// live capture.
type Filter interface {
	Accepts(md *camera.Metadata) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(md *camera.Metadata) bool

func (f FilterFunc) Accepts(md *camera.Metadata) bool { return f(md) }

// AcceptableFilter applies IsAcceptable with fixed convergence requirements.
type AcceptableFilter struct {
	RequireAF bool
	RequireAE bool
}

func (f AcceptableFilter) Accepts(md *camera.Metadata) bool {
	return IsAcceptable(md, f.RequireAF, f.RequireAE)
}

// IsAcceptable reports whether a frame may be served. A moving lens always
// rejects. AE and AF are only checked when required. A field the pipeline
// did not report never causes rejection.
func IsAcceptable(md *camera.Metadata, requireAF, requireAE bool) bool {
	if md == nil {
		return false
	}

	lensOK := md.LensState == nil || *md.LensState == camera.LensStationary
	aeOK := !requireAE || md.AEState == nil || aeConverged(*md.AEState)
	afOK := !requireAF || md.AFState == nil || afConverged(*md.AFState)

	return lensOK && aeOK && afOK
}

func aeConverged(s camera.AEState) bool {
	switch s {
	case camera.AEInactive, camera.AELocked, camera.AEConverged:
		return true
	}
	return false
}

func afConverged(s camera.AFState) bool {
	switch s {
	case camera.AFInactive,
		camera.AFFocusedLocked,
		camera.AFNotFocusedLocked,
		camera.AFPassiveFocused,
		camera.AFPassiveUnfocused:
		return true
	}
	return false
}
