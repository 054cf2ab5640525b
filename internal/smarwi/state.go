package smarwi

// StateCode is the numeric state reported by a SMARWI in the "s" status field.
type StateCode int

// Known state codes. Opening/closing phases between 200 and 249 are reported
// while the motor is running; everything below 200 is an error or calibration.
const (
	StateCalibration     StateCode = -1  // calibration in progress
	StateUnknown         StateCode = 0   // fallback for unrecognized codes
	StateErrWindowLocked StateCode = 10  // window is locked to the frame
	StateErrMoveTimeout  StateCode = 20  // move to frame sensor timed out
	StateErrWindowHoriz  StateCode = 30  // window is open in horizontal position
	StateOpeningStart    StateCode = 200 // moving to frame sensor position, opening phase
	StateOpening         StateCode = 210 // opening until the target ventilation position
	StateReopenStart     StateCode = 212 // open invoked between frame sensor and ventilation distance
	StateReopenPhase     StateCode = 214 // window reached the frame sensor
	StateReopenFinal     StateCode = 216 // final reopen phase, moving to the target position
	StateClosingStart    StateCode = 220 // moving to frame sensor position, closing phase
	StateClosing         StateCode = 230 // closing until the target closed position
	StateClosingNice     StateCode = 231 // closing step by step until an obstacle is detected
	StateRecloseStart    StateCode = 232 // close invoked between frame and frame sensor
	StateReclosePhase    StateCode = 234 // window moved past the frame sensor
	StateIdle            StateCode = 250
)

var stateNames = map[StateCode]string{
	StateCalibration:     "CALIBRATION",
	StateUnknown:         "UNKNOWN",
	StateErrWindowLocked: "ERR_WINDOW_LOCKED",
	StateErrMoveTimeout:  "ERR_MOVE_TIMEOUT",
	StateErrWindowHoriz:  "ERR_WINDOW_HORIZ",
	StateOpeningStart:    "OPENING_START",
	StateOpening:         "OPENING",
	StateReopenStart:     "REOPEN_START",
	StateReopenPhase:     "REOPEN_PHASE",
	StateReopenFinal:     "REOPEN_FINAL",
	StateClosingStart:    "CLOSING_START",
	StateClosing:         "CLOSING",
	StateClosingNice:     "CLOSING_NICE",
	StateRecloseStart:    "RECLOSE_START",
	StateReclosePhase:    "RECLOSE_PHASE",
	StateIdle:            "IDLE",
}

// StateCodeByName converts a state name produced by StateCode.String back to
// the code, StateUnknown for unrecognized names.
func StateCodeByName(name string) StateCode {
	for code, n := range stateNames {
		if n == name {
			return code
		}
	}
	return StateUnknown
}

// StateCodeOf converts a raw numeric code to a StateCode, mapping codes this
// package does not know about to StateUnknown.
func StateCodeOf(n int) StateCode {
	if _, ok := stateNames[StateCode(n)]; ok {
		return StateCode(n)
	}
	return StateUnknown
}

func (s StateCode) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsError reports whether the state indicates an error (or calibration).
func (s StateCode) IsError() bool {
	return s < 200
}

// IsIdle reports whether the window is idle.
func (s StateCode) IsIdle() bool {
	return s == StateIdle
}

// IsMoving reports whether the window is moving.
func (s StateCode) IsMoving() bool {
	return s > 199 && s < 250
}

// IsNearFrame reports whether the window is between the frame and the frame
// sensor, where the exact position is not known.
func (s StateCode) IsNearFrame() bool {
	switch s {
	case StateOpeningStart, StateReopenPhase, StateClosing, StateClosingNice:
		return true
	}
	return false
}
