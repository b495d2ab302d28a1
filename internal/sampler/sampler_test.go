package sampler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/classifier"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

func testFrame() types.Frame {
	return types.Frame{Seq: 1, Width: 2, Height: 2, Data: make([]byte, 12)}
}

func TestSampleProducesReading(t *testing.T) {
	s := New(classifier.Func(func(ctx context.Context, f types.Frame) (types.EmotionVector, bool) {
		return types.EmotionVector{Happy: 0.8}, true
	}))

	reading, outcome := s.Sample(context.Background(), testFrame(), 3.5)
	if outcome != OutcomeReading {
		t.Fatalf("expected reading outcome, got %s", outcome)
	}
	if reading.Timestamp != 3.5 {
		t.Errorf("reading must carry the caller's stimulus time, got %v", reading.Timestamp)
	}
	if reading.Expressions.Happy != 0.8 {
		t.Errorf("expression vector not carried through: %+v", reading.Expressions)
	}
}

func TestNoFaceOutcome(t *testing.T) {
	s := New(classifier.Func(func(ctx context.Context, f types.Frame) (types.EmotionVector, bool) {
		return types.EmotionVector{}, false
	}))

	_, outcome := s.Sample(context.Background(), testFrame(), 1)
	if outcome != OutcomeNoFace {
		t.Fatalf("expected no-face outcome, got %s", outcome)
	}

	stats := s.Stats()
	if stats.NoFace != 1 || stats.Readings != 0 {
		t.Errorf("counter mismatch: %+v", stats)
	}
}

func TestOverlappingInvocationSkipped(t *testing.T) {
	release := make(chan struct{})
	s := New(classifier.Func(func(ctx context.Context, f types.Frame) (types.EmotionVector, bool) {
		<-release
		return types.EmotionVector{Happy: 1}, true
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Sample(context.Background(), testFrame(), 0)
	}()

	// Let the first invocation enter the classifier.
	time.Sleep(20 * time.Millisecond)

	_, outcome := s.Sample(context.Background(), testFrame(), 0.5)
	if outcome != OutcomeSkipped {
		t.Fatalf("second tick must be skipped while the first is in flight, got %s", outcome)
	}

	close(release)
	wg.Wait()

	stats := s.Stats()
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skip, got %d", stats.Skipped)
	}
	if stats.Invocations != 1 {
		t.Errorf("the skipped tick must not count as an invocation, got %d", stats.Invocations)
	}
}

func TestSamplerFreesAfterInvocation(t *testing.T) {
	s := New(classifier.Func(func(ctx context.Context, f types.Frame) (types.EmotionVector, bool) {
		return types.EmotionVector{Happy: 1}, true
	}))

	for i := 0; i < 3; i++ {
		if _, outcome := s.Sample(context.Background(), testFrame(), float64(i)); outcome != OutcomeReading {
			t.Fatalf("sequential sample %d should succeed, got %s", i, outcome)
		}
	}
	if s.Stats().Readings != 3 {
		t.Errorf("expected 3 readings, got %d", s.Stats().Readings)
	}
}
