package scanner

import "time"

// State is the lifecycle position of the current attempt.
type State int

const (
	StateIdle State = iota
	StateAcquiringCamera
	StateDecoding
	StateSubmitting
	StateStopped
	StateError
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateAcquiringCamera: "acquiring_camera",
	StateDecoding:        "decoding",
	StateSubmitting:      "submitting",
	StateStopped:         "stopped",
	StateError:           "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome classifies what happened during an attempt. CheckedIn, CameraError,
// Timeout and Cancelled end the attempt; InvalidQR and SubmitFailed do not.
type Outcome string

const (
	OutcomeCheckedIn    Outcome = "checked_in"
	OutcomeInvalidQR    Outcome = "invalid_qr"
	OutcomeSubmitFailed Outcome = "submit_failed"
	OutcomeCameraError  Outcome = "camera_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeCancelled    Outcome = "cancelled"
)

// Terminal reports whether o ends the attempt.
func (o Outcome) Terminal() bool {
	return o != OutcomeInvalidQR && o != OutcomeSubmitFailed && o != ""
}

// Report describes one outcome of an attempt.
type Report struct {
	SessionID string
	Outcome   Outcome
	ClassID   int64
	Detail    string
	Acquire   time.Duration
	Submit    time.Duration
	Elapsed   time.Duration
	At        time.Time
}

// Snapshot is a point-in-time copy of the session flags.
type Snapshot struct {
	ID         string
	State      State
	Scanning   bool
	Processing bool
	LastError  string
	ErrorShown bool
}
