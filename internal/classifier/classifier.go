// Package classifier defines the opaque facial-expression classifier
// consumed by the sampler.
//
// The classifier is a capability, not a component of this system: any
// failure to produce scores — transport error, timeout, malformed reply —
// is treated identically to "no face in frame". The capture pipeline never
// fails because of it.
package classifier

import (
	"context"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// Classifier detects a facial expression in a single frame.
//
// Detect returns (vector, true) when a face was found, (zero, false)
// otherwise. Implementations must be side-effect-free per invocation.
type Classifier interface {
	Detect(ctx context.Context, frame types.Frame) (types.EmotionVector, bool)
}

// Func adapts a plain function to the Classifier interface. Used heavily
// by tests to script detection sequences.
type Func func(ctx context.Context, frame types.Frame) (types.EmotionVector, bool)

// Detect implements Classifier.
func (f Func) Detect(ctx context.Context, frame types.Frame) (types.EmotionVector, bool) {
	return f(ctx, frame)
}
