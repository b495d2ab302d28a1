package types

import "time"

// FilterAll is the sentinel value that excludes a demographic field from
// filter conjunction.
const FilterAll = "all"

// Demographics holds the self-reported intake fields used for dashboard
// filtering. Values are free-form strings matched exactly by the filter.
type Demographics struct {
	AgeBand     string `json:"age_band"`
	Gender      string `json:"gender"`
	Race        string `json:"race"`
	Nationality string `json:"nationality"`
}

// Media describes a recorded media artifact written by the recorder.
// The session never reads the media back; the path is forwarded to
// persistence as-is.
type Media struct {
	// Path is the location of the recorded file on disk
	Path string `json:"path"`
	// MIME is the container MIME type (e.g. "video/webm")
	MIME string `json:"mime"`
	// SizeBytes is the recorded file size, 0 if unknown
	SizeBytes int64 `json:"size_bytes"`
}

// ParticipantRecord is the read-side join of one participant's persisted
// demographics and sentiment data for a single stimulus.
//
// Records are assembled by the store on every dashboard refresh and owned
// by the Aggregation Engine's working set; they are rebuilt wholesale,
// never mutated in place.
type ParticipantRecord struct {
	ParticipantID string             `json:"participant_id"`
	StimulusID    string             `json:"stimulus_id"`
	Demographics  Demographics       `json:"demographics"`
	Readings      []SentimentReading `json:"readings"`
	Duration      ReconciledDuration `json:"duration"`
	RecordedAt    time.Time          `json:"recorded_at"`
}
