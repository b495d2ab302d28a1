// Package sampler wraps the expression classifier for fixed-cadence
// sampling during a capture session.
//
// The sampler enforces the no-overlap rule: if one tick's classifier
// invocation has not returned when the next tick fires, the next tick is
// skipped, not queued. This bounds classifier load independent of tick
// timer drift.
package sampler

import (
	"context"
	"sync/atomic"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/classifier"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// Outcome describes what one sampling attempt produced.
type Outcome int

const (
	// OutcomeReading means a face was found and a reading was produced
	OutcomeReading Outcome = iota
	// OutcomeNoFace means the classifier found no face (expected state,
	// not a fault)
	OutcomeNoFace
	// OutcomeSkipped means a previous invocation was still in flight
	OutcomeSkipped
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeReading:
		return "reading"
	case OutcomeNoFace:
		return "no-face"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of sampler counters.
type Stats struct {
	Invocations uint64
	Readings    uint64
	NoFace      uint64
	Skipped     uint64
}

// Sampler produces at most one expression reading per invocation, and at
// most one invocation at a time.
type Sampler struct {
	cls  classifier.Classifier
	busy atomic.Bool

	invocations atomic.Uint64
	readings    atomic.Uint64
	noFace      atomic.Uint64
	skipped     atomic.Uint64
}

// New creates a sampler around a classifier.
func New(cls classifier.Classifier) *Sampler {
	return &Sampler{cls: cls}
}

// Sample runs the classifier against frame, stamping any reading with the
// supplied stimulus-clock time.
//
// The stimulus time is captured by the CALLER at tick time, before the
// classifier runs: a slow invocation must not shift the reading later on
// the stimulus clock.
func (s *Sampler) Sample(ctx context.Context, frame types.Frame, stimulusTime float64) (types.SentimentReading, Outcome) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return types.SentimentReading{}, OutcomeSkipped
	}
	defer s.busy.Store(false)

	s.invocations.Add(1)

	vec, found := s.cls.Detect(ctx, frame)
	if !found {
		s.noFace.Add(1)
		return types.SentimentReading{}, OutcomeNoFace
	}

	s.readings.Add(1)
	return types.SentimentReading{Timestamp: stimulusTime, Expressions: vec}, OutcomeReading
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Invocations: s.invocations.Load(),
		Readings:    s.readings.Load(),
		NoFace:      s.noFace.Load(),
		Skipped:     s.skipped.Load(),
	}
}
