package smarwi

// PositionUnknown is reported while the window position cannot be determined,
// e.g. after the movement was interrupted or before the first full cycle.
const PositionUnknown = -1

// NearFramePosition is the position reported while the window is between the
// frame and the frame sensor.
const NearFramePosition = 5

// PositionTracker estimates the window ventilation position from state code
// transitions. SMARWI only reports open/closed and a state code, so the
// position is inferred: a completed movement is assumed to have reached the
// last requested target.
type PositionTracker struct {
	position  int
	requested int
	moving    bool
}

// NewPositionTracker returns a tracker with an unknown position.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{position: PositionUnknown, requested: PositionUnknown}
}

// SetTarget records the position requested by an open/close command.
func (t *PositionTracker) SetTarget(pct int) {
	t.requested = pct
}

// ClearTarget discards the requested and estimated positions. Used when the
// movement is stopped midway.
func (t *PositionTracker) ClearTarget() {
	t.requested = PositionUnknown
	t.position = PositionUnknown
}

// Update advances the tracker with a fresh state code and closed flag.
func (t *PositionTracker) Update(code StateCode, closed bool) {
	switch {
	case code.IsError():
		t.moving = false
		t.position = PositionUnknown
		t.requested = PositionUnknown
	case code.IsMoving():
		t.moving = true
		if code.IsNearFrame() {
			t.position = NearFramePosition
		}
	case code.IsIdle():
		if closed {
			t.moving = false
			t.position = 0
			t.requested = 0
		} else if t.moving {
			t.moving = false
			if t.requested >= 0 {
				t.position = t.requested
				t.requested = PositionUnknown
			} else {
				t.position = PositionUnknown
			}
		}
	}
}

// Position returns the estimated position 0-100, or PositionUnknown.
func (t *PositionTracker) Position() int { return t.position }

// Moving reports whether the window is currently moving.
func (t *PositionTracker) Moving() bool { return t.moving }

// CoverState maps the tracker state to a Home Assistant MQTT cover state
// payload: open, opening, closing, closed or stopped. The movement direction
// comes from the state code (codes below 220 are opening phases).
func (t *PositionTracker) CoverState(code StateCode, closed bool) string {
	switch {
	case code.IsMoving() && code < StateClosingStart:
		return "opening"
	case code.IsMoving():
		return "closing"
	case closed:
		return "closed"
	case t.position > 0:
		return "open"
	case t.position == 0:
		return "closed"
	default:
		return "stopped"
	}
}
