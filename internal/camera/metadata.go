package camera

import (
	"fmt"
)

// LensState reports whether the lens was moving while the frame was exposed.
type LensState int

const (
	LensStationary LensState = iota
	LensMoving
)

var lensStateNames = map[LensState]string{
	LensStationary: "stationary",
	LensMoving:     "moving",
}

func (s LensState) String() string { return enumName(lensStateNames, s) }

// MarshalText implements encoding.TextMarshaler.
func (s LensState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LensState) UnmarshalText(b []byte) error { return parseEnum(lensStateNames, s, string(b)) }

// AFState is the auto-focus routine state for a frame.
type AFState int

const (
	AFInactive AFState = iota
	AFPassiveScan
	AFActiveScan
	AFFocusedLocked
	AFNotFocusedLocked
	AFPassiveFocused
	AFPassiveUnfocused
)

var afStateNames = map[AFState]string{
	AFInactive:         "inactive",
	AFPassiveScan:      "passive-scan",
	AFActiveScan:       "active-scan",
	AFFocusedLocked:    "focused-locked",
	AFNotFocusedLocked: "not-focused-locked",
	AFPassiveFocused:   "passive-focused",
	AFPassiveUnfocused: "passive-unfocused",
}

func (s AFState) String() string { return enumName(afStateNames, s) }

// MarshalText implements encoding.TextMarshaler.
func (s AFState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AFState) UnmarshalText(b []byte) error { return parseEnum(afStateNames, s, string(b)) }

// AEState is the auto-exposure routine state for a frame.
type AEState int

const (
	AEInactive AEState = iota
	AESearching
	AEConverged
	AELocked
	AEFlashRequired
	AEPrecapture
)

var aeStateNames = map[AEState]string{
	AEInactive:      "inactive",
	AESearching:     "searching",
	AEConverged:     "converged",
	AELocked:        "locked",
	AEFlashRequired: "flash-required",
	AEPrecapture:    "precapture",
}

func (s AEState) String() string { return enumName(aeStateNames, s) }

// MarshalText implements encoding.TextMarshaler.
func (s AEState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AEState) UnmarshalText(b []byte) error { return parseEnum(aeStateNames, s, string(b)) }

func enumName[T comparable](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%v)", any(v))
}

func parseEnum[T comparable](names map[T]string, dst *T, s string) error {
	for v, n := range names {
		if n == s {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", s)
}

// Metadata is the capture result reported for one frame. The convergence
// fields are optional: nil means the pipeline did not report a value.
type Metadata struct {
	Timestamp   int64 `json:"timestamp_ns"`
	FrameNumber int64 `json:"frame_number"`

	LensState *LensState `json:"lens_state,omitempty"`
	AFState   *AFState   `json:"af_state,omitempty"`
	AEState   *AEState   `json:"ae_state,omitempty"`
}

// WithAEState returns a copy of md with the AE state replaced. md itself is
// left untouched.
func (md *Metadata) WithAEState(s AEState) *Metadata {
	view := *md
	view.AEState = &s
	return &view
}

// Lens, AF and AE return pointers suitable for Metadata's optional fields.
func Lens(s LensState) *LensState { return &s }
func AF(s AFState) *AFState       { return &s }
func AE(s AEState) *AEState       { return &s }
