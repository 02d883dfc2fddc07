package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	Logf("frame %d", 7)
	if len(lines) != 1 || lines[0] != "frame 7" {
		t.Fatalf("custom logger got %q", lines)
	}

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("dropped")
	if len(lines) != 1 {
		t.Errorf("no-op logger should not forward, got %q", lines)
	}
}

func TestDebugf_GatedBySetDebug(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	defer SetDebug(false)

	calls := 0
	SetLogger(func(string, ...interface{}) { calls++ })

	Debugf("hidden")
	if calls != 0 {
		t.Errorf("Debugf logged while debug disabled")
	}

	SetDebug(true)
	Debugf("shown %d", 1)
	if calls != 1 {
		t.Errorf("Debugf calls = %d, want 1", calls)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}
