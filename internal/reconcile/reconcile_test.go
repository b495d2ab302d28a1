package reconcile

import (
	"math"
	"testing"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

func fp(v float64) *float64 { return &v }

func TestPrecedenceOverrideWins(t *testing.T) {
	d := Reconcile(Signals{
		Override:      fp(42.5),
		RecorderSpan:  fp(40.0),
		StimulusClock: 38.0,
	}, DefaultBounds())

	if d.Seconds != 42.5 {
		t.Fatalf("expected override value 42.5, got %v", d.Seconds)
	}
	if d.Source != types.SourceRecorderTiming {
		t.Errorf("expected recorder-timing source, got %s", d.SourceName)
	}
	if !d.IsValid {
		t.Errorf("expected valid duration, got invalid: %s", d.InvalidReason)
	}
}

func TestPrecedenceSpanOverClock(t *testing.T) {
	d := Reconcile(Signals{
		RecorderSpan:  fp(40.0),
		StimulusClock: 38.0,
	}, DefaultBounds())

	if d.Seconds != 40.0 {
		t.Fatalf("expected recorder span 40.0, got %v", d.Seconds)
	}
	if d.Source != types.SourceRecorderTiming {
		t.Errorf("expected recorder-timing source, got %s", d.SourceName)
	}
}

func TestStimulusClockFallback(t *testing.T) {
	d := Reconcile(Signals{StimulusClock: 12.3456}, DefaultBounds())

	if d.Source != types.SourceStimulusClock {
		t.Fatalf("expected stimulus-clock source, got %s", d.SourceName)
	}
	if d.Seconds != 12.346 {
		t.Errorf("expected rounding to 3 decimals (12.346), got %v", d.Seconds)
	}
}

func TestFloorWhenNothingPresent(t *testing.T) {
	d := Reconcile(Signals{StimulusClock: -1}, DefaultBounds())

	if d.Source != types.SourceFallbackMinimum {
		t.Fatalf("expected fallback-minimum source, got %s", d.SourceName)
	}
	if d.Seconds != 0.1 {
		t.Errorf("expected floor 0.1, got %v", d.Seconds)
	}
	if !d.IsValid {
		t.Errorf("floor value itself is inside bounds, expected valid")
	}
}

func TestFirstPresentWinsEvenOutOfBounds(t *testing.T) {
	// A recorder span above the ceiling must be clamped and flagged, not
	// fall through to the in-bounds stimulus clock.
	d := Reconcile(Signals{
		RecorderSpan:  fp(5000.0),
		StimulusClock: 100.0,
	}, DefaultBounds())

	if d.Source != types.SourceRecorderTiming {
		t.Fatalf("provenance must stay with the recorder span, got %s", d.SourceName)
	}
	if d.Seconds != 3600 {
		t.Errorf("expected clamp to ceiling 3600, got %v", d.Seconds)
	}
	if d.IsValid {
		t.Errorf("clamped duration must be flagged invalid")
	}
	if d.InvalidReason == "" {
		t.Errorf("invalid duration must carry a reason")
	}
}

func TestClampBelowFloor(t *testing.T) {
	d := Reconcile(Signals{StimulusClock: 0.01}, DefaultBounds())

	if d.Seconds != 0.1 {
		t.Errorf("expected clamp to floor 0.1, got %v", d.Seconds)
	}
	if d.IsValid {
		t.Errorf("expected invalid flag for sub-floor duration")
	}
}

func TestNaNCandidate(t *testing.T) {
	d := Reconcile(Signals{Override: fp(math.NaN())}, DefaultBounds())

	if d.Seconds != 0.1 {
		t.Errorf("NaN must collapse to the floor, got %v", d.Seconds)
	}
	if d.IsValid {
		t.Errorf("NaN duration must be invalid")
	}
}

func TestCustomBounds(t *testing.T) {
	b := Bounds{MinSeconds: 1, MaxSeconds: 10}

	d := Reconcile(Signals{StimulusClock: 5}, b)
	if !d.IsValid || d.Seconds != 5 {
		t.Fatalf("in-bounds value mishandled: %+v", d)
	}

	d = Reconcile(Signals{StimulusClock: 20}, b)
	if d.Seconds != 10 || d.IsValid {
		t.Errorf("expected clamp to custom ceiling, got %+v", d)
	}
}

func TestZeroBoundsGetDefaults(t *testing.T) {
	d := Reconcile(Signals{StimulusClock: 50}, Bounds{})
	if !d.IsValid || d.Seconds != 50 {
		t.Fatalf("zero-valued bounds should behave as defaults: %+v", d)
	}
}

func TestAlwaysReturnsAValue(t *testing.T) {
	cases := []Signals{
		{},
		{StimulusClock: -5},
		{Override: fp(-1)},
		{RecorderSpan: fp(math.Inf(1))},
	}
	for i, sig := range cases {
		d := Reconcile(sig, DefaultBounds())
		if d.Seconds < 0.1 || d.Seconds > 3600 {
			t.Errorf("case %d: result %v escaped bounds", i, d.Seconds)
		}
		if d.SourceName == "" {
			t.Errorf("case %d: missing source name", i)
		}
	}
}
