// Package reconcile derives a single validated session duration from
// possibly-conflicting timing sources.
//
// The reconciler never fails outright: every input produces a duration.
// An out-of-bounds candidate is clamped to the nearest bound and flagged
// invalid with the reason retained — an unusable-but-present duration is
// strictly better for downstream analytics than a missing one.
package reconcile

import (
	"fmt"
	"math"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// Bounds define the validity window for a reconciled duration.
type Bounds struct {
	// MinSeconds is the validity floor and the fallback value (default 0.1)
	MinSeconds float64
	// MaxSeconds is the validity ceiling (default 3600)
	MaxSeconds float64
}

// DefaultBounds returns the standard validity window.
func DefaultBounds() Bounds {
	return Bounds{MinSeconds: 0.1, MaxSeconds: 3600}
}

// Signals carries the candidate duration sources gathered at the finalize
// instant. Nil pointers mean the signal is absent.
type Signals struct {
	// Override is a duration the recorder supplied from its own timing.
	// Takes precedence over the measured span when present.
	Override *float64
	// RecorderSpan is the wall-clock delta between recorder start and stop
	RecorderSpan *float64
	// StimulusClock is the stimulus playback time at the finalize instant.
	// Negative means unavailable.
	StimulusClock float64
}

// Reconcile picks the best candidate and validates it.
//
// Preference order: recorder-supplied override, measured recorder span,
// stimulus clock, configured floor. The first present candidate wins even
// if out of bounds — an out-of-bounds recorder span is clamped and flagged
// rather than falling through to the stimulus clock, so the provenance
// always reflects the signal that was actually trusted.
func Reconcile(sig Signals, b Bounds) types.ReconciledDuration {
	if b.MinSeconds <= 0 {
		b.MinSeconds = 0.1
	}
	if b.MaxSeconds <= b.MinSeconds {
		b.MaxSeconds = 3600
	}

	var candidate float64
	var source types.DurationSource

	switch {
	case sig.Override != nil:
		candidate = *sig.Override
		source = types.SourceRecorderTiming
	case sig.RecorderSpan != nil:
		candidate = *sig.RecorderSpan
		source = types.SourceRecorderTiming
	case sig.StimulusClock >= 0:
		candidate = sig.StimulusClock
		source = types.SourceStimulusClock
	default:
		candidate = b.MinSeconds
		source = types.SourceFallbackMinimum
	}

	seconds, valid, reason := clamp(candidate, b)

	return types.ReconciledDuration{
		Seconds:       round3(seconds),
		Source:        source,
		SourceName:    source.String(),
		IsValid:       valid,
		InvalidReason: reason,
	}
}

// clamp forces v into [min, max], reporting why when it was outside.
func clamp(v float64, b Bounds) (seconds float64, valid bool, reason string) {
	switch {
	case math.IsNaN(v):
		return b.MinSeconds, false, "duration is NaN"
	case v < b.MinSeconds:
		return b.MinSeconds, false, fmt.Sprintf("duration %.3fs below minimum %.3fs", v, b.MinSeconds)
	case v > b.MaxSeconds:
		return b.MaxSeconds, false, fmt.Sprintf("duration %.3fs above maximum %.3fs", v, b.MaxSeconds)
	default:
		return v, true, ""
	}
}

// round3 rounds to 3 decimal places.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
