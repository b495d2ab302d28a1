package types

// SessionState is the single authoritative capture session state. Every
// asynchronous callback consults it before acting.
type SessionState int

const (
	// StateIdle means no camera stream is held; Arm() is retryable here
	StateIdle SessionState = iota
	// StateArmed means the camera is live but sampler/recorder are not
	// yet running
	StateArmed
	// StateRunning means sampling and (if available) recording are active
	StateRunning
	// StateFinalizing means termination is in flight: the reading buffer
	// and stimulus clock have been captured by value
	StateFinalizing
	// StateCompleted means the persistence handoff was initiated
	StateCompleted
	// StateFailed means finalization hit an unrecoverable internal error;
	// captured readings were still forwarded without media
	StateFailed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
