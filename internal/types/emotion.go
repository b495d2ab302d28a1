package types

// EmotionVector holds the seven raw classifier confidence scores for one
// face. Scores are non-negative and are NOT required to sum to 1 — they are
// the classifier's raw outputs, never renormalized downstream.
//
// An EmotionVector is immutable once produced: aggregation code operates on
// copies and accumulators, never in place.
type EmotionVector struct {
	Neutral   float64 `json:"neutral"`
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Fearful   float64 `json:"fearful"`
	Disgusted float64 `json:"disgusted"`
	Surprised float64 `json:"surprised"`
}

// EmotionLabels lists the seven emotion names in canonical order.
var EmotionLabels = []string{
	"neutral", "happy", "sad", "angry", "fearful", "disgusted", "surprised",
}

// Values returns the scores in canonical label order.
func (v EmotionVector) Values() [7]float64 {
	return [7]float64{v.Neutral, v.Happy, v.Sad, v.Angry, v.Fearful, v.Disgusted, v.Surprised}
}

// Plus returns the element-wise sum of v and o. Used by aggregation
// accumulators; v itself is not modified.
func (v EmotionVector) Plus(o EmotionVector) EmotionVector {
	return EmotionVector{
		Neutral:   v.Neutral + o.Neutral,
		Happy:     v.Happy + o.Happy,
		Sad:       v.Sad + o.Sad,
		Angry:     v.Angry + o.Angry,
		Fearful:   v.Fearful + o.Fearful,
		Disgusted: v.Disgusted + o.Disgusted,
		Surprised: v.Surprised + o.Surprised,
	}
}

// Scaled returns v with every score multiplied by f.
func (v EmotionVector) Scaled(f float64) EmotionVector {
	return EmotionVector{
		Neutral:   v.Neutral * f,
		Happy:     v.Happy * f,
		Sad:       v.Sad * f,
		Angry:     v.Angry * f,
		Fearful:   v.Fearful * f,
		Disgusted: v.Disgusted * f,
		Surprised: v.Surprised * f,
	}
}

// Dominant returns the label with the highest score. Ties resolve to the
// earlier label in canonical order.
func (v EmotionVector) Dominant() string {
	values := v.Values()
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return EmotionLabels[best]
}

// SentimentReading is one timestamped emotion vector produced during a
// capture session.
//
// Timestamp is seconds since session start on the STIMULUS clock, not wall
// clock — the session normalizes before a reading is stored. Readings are
// appended in strictly increasing timestamp order and never mutated.
type SentimentReading struct {
	// Timestamp is seconds since the stimulus started playing
	Timestamp float64 `json:"timestamp"`
	// Expressions holds the classifier scores for the detected face
	Expressions EmotionVector `json:"expressions"`
}
