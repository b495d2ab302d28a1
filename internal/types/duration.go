package types

// DurationSource identifies which timing signal produced a reconciled
// duration.
type DurationSource int

const (
	// SourceRecorderTiming means the duration came from the recorder's
	// wall-clock start/stop span (or a recorder-supplied override)
	SourceRecorderTiming DurationSource = iota
	// SourceStimulusClock means the duration came from the stimulus
	// playback clock at the finalize instant
	SourceStimulusClock
	// SourceFallbackMinimum means no usable signal was present and the
	// configured floor was used
	SourceFallbackMinimum
)

// String returns a human-readable string representation of the source.
func (s DurationSource) String() string {
	switch s {
	case SourceRecorderTiming:
		return "recorder-timing"
	case SourceStimulusClock:
		return "stimulus-clock"
	case SourceFallbackMinimum:
		return "fallback-minimum"
	default:
		return "unknown"
	}
}

// ReconciledDuration is the single validated length-of-recording value for
// one session, derived from possibly-conflicting timing sources. Computed
// exactly once at session termination; immutable afterward.
//
// A duration value is ALWAYS present, even when invalid: an out-of-bounds
// candidate is clamped to the nearest bound and flagged with IsValid=false,
// never rejected. An unusable-but-present duration is strictly better for
// downstream analytics than a missing one.
type ReconciledDuration struct {
	// Seconds is the duration, clamped to configured bounds and rounded
	// to 3 decimal places
	Seconds float64 `json:"seconds"`
	// Source identifies the timing signal that won
	Source DurationSource `json:"-"`
	// SourceName is the serialized form of Source
	SourceName string `json:"source"`
	// IsValid is false when the winning candidate was out of bounds
	IsValid bool `json:"is_valid"`
	// InvalidReason retains the out-of-bounds diagnostic when IsValid is
	// false; empty otherwise
	InvalidReason string `json:"invalid_reason,omitempty"`
}
