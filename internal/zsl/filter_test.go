package zsl

import (
	"testing"

	"github.com/banshee-data/zerolag/internal/camera"
)

var (
	allAE = []camera.AEState{
		camera.AEInactive, camera.AESearching, camera.AEConverged,
		camera.AELocked, camera.AEFlashRequired, camera.AEPrecapture,
	}
	allAF = []camera.AFState{
		camera.AFInactive, camera.AFPassiveScan, camera.AFActiveScan,
		camera.AFFocusedLocked, camera.AFNotFocusedLocked,
		camera.AFPassiveFocused, camera.AFPassiveUnfocused,
	}
	flagCombos = [][2]bool{{false, false}, {false, true}, {true, false}, {true, true}}
)

func TestIsAcceptable_MovingLensAlwaysRejects(t *testing.T) {
	for _, ae := range allAE {
		for _, af := range allAF {
			for _, flags := range flagCombos {
				md := &camera.Metadata{
					LensState: camera.Lens(camera.LensMoving),
					AEState:   camera.AE(ae),
					AFState:   camera.AF(af),
				}
				if IsAcceptable(md, flags[0], flags[1]) {
					t.Errorf("moving lens accepted: ae=%s af=%s requireAF=%t requireAE=%t", ae, af, flags[0], flags[1])
				}
			}
		}
	}
}

func TestIsAcceptable_AbsentFieldsNeverReject(t *testing.T) {
	for _, flags := range flagCombos {
		if !IsAcceptable(&camera.Metadata{}, flags[0], flags[1]) {
			t.Errorf("empty metadata rejected with requireAF=%t requireAE=%t", flags[0], flags[1])
		}
	}

	// a bad AE with AF absent: only AE can reject
	md := &camera.Metadata{AEState: camera.AE(camera.AESearching)}
	if !IsAcceptable(md, true, false) {
		t.Error("absent AF rejected a frame")
	}

	// a bad AF with AE absent and lens absent
	md = &camera.Metadata{AFState: camera.AF(camera.AFActiveScan)}
	if !IsAcceptable(md, false, true) {
		t.Error("absent AE rejected a frame")
	}
}

func TestIsAcceptable_AEStates(t *testing.T) {
	tests := []struct {
		ae   camera.AEState
		want bool
	}{
		{camera.AEInactive, true},
		{camera.AELocked, true},
		{camera.AEConverged, true},
		{camera.AESearching, false},
		{camera.AEFlashRequired, false},
		{camera.AEPrecapture, false},
	}
	for _, tt := range tests {
		t.Run(tt.ae.String(), func(t *testing.T) {
			md := &camera.Metadata{
				LensState: camera.Lens(camera.LensStationary),
				AFState:   camera.AF(camera.AFFocusedLocked),
				AEState:   camera.AE(tt.ae),
			}
			if got := IsAcceptable(md, true, true); got != tt.want {
				t.Errorf("IsAcceptable() = %t, want %t", got, tt.want)
			}
			// AE is ignored when not required
			if !IsAcceptable(md, true, false) {
				t.Error("AE checked although not required")
			}
		})
	}
}

func TestIsAcceptable_AFStates(t *testing.T) {
	accepted := map[camera.AFState]bool{
		camera.AFInactive:         true,
		camera.AFFocusedLocked:    true,
		camera.AFNotFocusedLocked: true,
		camera.AFPassiveFocused:   true,
		camera.AFPassiveUnfocused: true,
	}
	for _, af := range allAF {
		md := &camera.Metadata{AFState: camera.AF(af), AEState: camera.AE(camera.AEConverged)}
		if got := IsAcceptable(md, true, true); got != accepted[af] {
			t.Errorf("af=%s: IsAcceptable() = %t, want %t", af, got, accepted[af])
		}
		if !IsAcceptable(md, false, true) {
			t.Errorf("af=%s checked although not required", af)
		}
	}
}

func TestIsAcceptable_NilMetadata(t *testing.T) {
	if IsAcceptable(nil, false, false) {
		t.Error("IsAcceptable(nil) = true")
	}
	if (AcceptableFilter{}).Accepts(nil) {
		t.Error("AcceptableFilter.Accepts(nil) = true")
	}
}

func TestAcceptableFilter_UsesFlags(t *testing.T) {
	md := &camera.Metadata{AEState: camera.AE(camera.AESearching), AFState: camera.AF(camera.AFFocusedLocked)}
	if (AcceptableFilter{RequireAF: true, RequireAE: true}).Accepts(md) {
		t.Error("searching AE accepted with RequireAE")
	}
	if !(AcceptableFilter{RequireAF: true}).Accepts(md) {
		t.Error("searching AE rejected without RequireAE")
	}

	var f Filter = FilterFunc(func(m *camera.Metadata) bool { return m.FrameNumber%2 == 0 })
	if !f.Accepts(&camera.Metadata{FrameNumber: 2}) || f.Accepts(&camera.Metadata{FrameNumber: 3}) {
		t.Error("FilterFunc did not delegate to the wrapped function")
	}
}
