package smarwi

import "testing"

func TestPositionTrackerInitial(t *testing.T) {
	tr := NewPositionTracker()
	if tr.Position() != PositionUnknown {
		t.Errorf("position = %d, want unknown", tr.Position())
	}
	if tr.Moving() {
		t.Error("moving = true, want false")
	}
}

func TestPositionTrackerFullOpenCycle(t *testing.T) {
	tr := NewPositionTracker()

	tr.SetTarget(75)
	tr.Update(StateOpeningStart, true)
	if !tr.Moving() {
		t.Fatal("moving = false during opening")
	}
	if tr.Position() != NearFramePosition {
		t.Errorf("position = %d, want %d near frame", tr.Position(), NearFramePosition)
	}

	tr.Update(StateOpening, false)
	if !tr.Moving() {
		t.Fatal("moving = false during opening phase")
	}

	tr.Update(StateIdle, false)
	if tr.Moving() {
		t.Error("moving = true after idle")
	}
	if tr.Position() != 75 {
		t.Errorf("position = %d, want 75 (requested target)", tr.Position())
	}
}

func TestPositionTrackerClose(t *testing.T) {
	tr := NewPositionTracker()
	tr.SetTarget(100)
	tr.Update(StateOpening, false)
	tr.Update(StateIdle, false)

	tr.SetTarget(0)
	tr.Update(StateClosingStart, false)
	tr.Update(StateClosing, false)
	if tr.Position() != NearFramePosition {
		t.Errorf("position = %d, want %d while closing near frame", tr.Position(), NearFramePosition)
	}

	tr.Update(StateIdle, true)
	if tr.Position() != 0 {
		t.Errorf("position = %d, want 0 when closed", tr.Position())
	}
	if tr.Moving() {
		t.Error("moving = true after close")
	}
}

func TestPositionTrackerIdleClosedAlwaysZero(t *testing.T) {
	// Closed at idle pins the position to 0 even without prior movement.
	tr := NewPositionTracker()
	tr.Update(StateIdle, true)
	if tr.Position() != 0 {
		t.Errorf("position = %d, want 0", tr.Position())
	}
}

func TestPositionTrackerIdleWithoutMotionKeepsPosition(t *testing.T) {
	// Repeated idle reports while open must not reset an estimated position.
	tr := NewPositionTracker()
	tr.SetTarget(50)
	tr.Update(StateOpening, false)
	tr.Update(StateIdle, false)
	if tr.Position() != 50 {
		t.Fatalf("position = %d, want 50", tr.Position())
	}

	tr.Update(StateIdle, false)
	if tr.Position() != 50 {
		t.Errorf("position = %d after repeated idle, want 50", tr.Position())
	}
}

func TestPositionTrackerStopMidway(t *testing.T) {
	tr := NewPositionTracker()
	tr.SetTarget(100)
	tr.Update(StateOpening, false)

	// Movement interrupted: target discarded, position is indeterminate.
	tr.ClearTarget()
	tr.Update(StateIdle, false)
	if tr.Position() != PositionUnknown {
		t.Errorf("position = %d after stop, want unknown", tr.Position())
	}
}

func TestPositionTrackerError(t *testing.T) {
	tr := NewPositionTracker()
	tr.SetTarget(100)
	tr.Update(StateOpening, false)
	tr.Update(StateErrMoveTimeout, false)

	if tr.Moving() {
		t.Error("moving = true after error")
	}
	if tr.Position() != PositionUnknown {
		t.Errorf("position = %d after error, want unknown", tr.Position())
	}
}

func TestCoverState(t *testing.T) {
	tests := []struct {
		name   string
		code   StateCode
		closed bool
		setup  func(*PositionTracker)
		want   string
	}{
		{"opening", StateOpening, false, nil, "opening"},
		{"opening start", StateOpeningStart, true, nil, "opening"},
		{"reopen final", StateReopenFinal, false, nil, "opening"},
		{"closing", StateClosing, false, nil, "closing"},
		{"closing start", StateClosingStart, false, nil, "closing"},
		{"closed", StateIdle, true, nil, "closed"},
		{
			"open after movement", StateIdle, false,
			func(tr *PositionTracker) {
				tr.SetTarget(50)
				tr.Update(StateOpening, false)
				tr.Update(StateIdle, false)
			},
			"open",
		},
		{"stopped with unknown position", StateIdle, false, nil, "stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewPositionTracker()
			if tt.setup != nil {
				tt.setup(tr)
			}
			if got := tr.CoverState(tt.code, tt.closed); got != tt.want {
				t.Errorf("CoverState(%v, %v) = %q, want %q", tt.code, tt.closed, got, tt.want)
			}
		})
	}
}
