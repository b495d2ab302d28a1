// Package aggregate computes cross-participant emotion aggregates for the
// dashboard: an instantaneous snapshot around a query time and a sparse
// time-bucketed timeline, both behind a minimum-participant privacy gate.
//
// Filtering and both aggregations are pure functions of (record set,
// filter, query time). The only stateful piece is the engine's retained
// prior snapshot, kept so the dashboard does not flicker to an empty view
// when a query time lands in a reading gap.
package aggregate

import (
	"sort"
	"sync"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// Filter is a conjunctive demographic filter. The "all" sentinel on a
// field excludes that field from the conjunction; a zero-valued field is
// treated the same way.
type Filter struct {
	AgeBand     string `json:"age_band"`
	Gender      string `json:"gender"`
	Race        string `json:"race"`
	Nationality string `json:"nationality"`
}

// Matches reports whether the demographics pass every active field.
func (f Filter) Matches(d types.Demographics) bool {
	return fieldMatches(f.AgeBand, d.AgeBand) &&
		fieldMatches(f.Gender, d.Gender) &&
		fieldMatches(f.Race, d.Race) &&
		fieldMatches(f.Nationality, d.Nationality)
}

func fieldMatches(want, have string) bool {
	if want == "" || want == types.FilterAll {
		return true
	}
	return want == have
}

// normalized folds the "all" sentinel into the zero value so equivalent
// filters compare equal.
func (f Filter) normalized() Filter {
	fold := func(v string) string {
		if v == types.FilterAll {
			return ""
		}
		return v
	}
	return Filter{
		AgeBand:     fold(f.AgeBand),
		Gender:      fold(f.Gender),
		Race:        fold(f.Race),
		Nationality: fold(f.Nationality),
	}
}

// Bucket is one populated slice of the timeline.
type Bucket struct {
	// BucketStart is the bucket's inclusive start on the stimulus clock,
	// in seconds
	BucketStart float64 `json:"bucket_start"`
	// Average is the unweighted per-emotion mean over every reading that
	// fell in the bucket
	Average types.EmotionVector `json:"average"`
	// Readings is how many readings contributed
	Readings int `json:"readings"`
}

// Snapshot is the instantaneous cross-participant view at a query time.
type Snapshot struct {
	QueryTime float64             `json:"query_time"`
	Average   types.EmotionVector `json:"average"`
	Readings  int                 `json:"readings"`
	// Retained marks a snapshot carried over from an earlier query because
	// no readings fell inside the current window
	Retained bool `json:"retained"`
}

// Result wraps either view with the privacy verdict. ParticipantCount is
// always populated, gated or not.
type Result[T any] struct {
	// Suppressed is true when the filtered participant count is below the
	// privacy minimum; View is then zero-valued
	Suppressed bool `json:"suppressed"`
	// ParticipantCount is the distinct-participant count of the filtered
	// set, never suppressed
	ParticipantCount int `json:"participant_count"`
	View             T   `json:"view"`
}

// Config carries the engine tunables.
type Config struct {
	// BucketWidth is the timeline bucket width in seconds (default 5)
	BucketWidth float64
	// SnapshotWindow is the half-width of the snapshot window in seconds
	// (default 1)
	SnapshotWindow float64
	// MinParticipants is the privacy gate threshold (default 5)
	MinParticipants int
}

func (c *Config) fill() {
	if c.BucketWidth <= 0 {
		c.BucketWidth = 5
	}
	if c.SnapshotWindow <= 0 {
		c.SnapshotWindow = 1
	}
	if c.MinParticipants <= 0 {
		c.MinParticipants = 5
	}
}

// FilterRecords returns the records whose demographics pass the filter.
// Pure: the input slice is never mutated.
func FilterRecords(records []types.ParticipantRecord, f Filter) []types.ParticipantRecord {
	out := make([]types.ParticipantRecord, 0, len(records))
	for _, r := range records {
		if f.Matches(r.Demographics) {
			out = append(out, r)
		}
	}
	return out
}

// DistinctParticipants counts unique participant identities in the set.
func DistinctParticipants(records []types.ParticipantRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.ParticipantID] = struct{}{}
	}
	return len(seen)
}

// SnapshotAt computes the unweighted per-emotion mean over every reading,
// across all records, whose timestamp falls within ±window of t. A
// participant contributing more readings in the window carries
// proportionally more weight. The second return is false when the window
// is empty.
func SnapshotAt(records []types.ParticipantRecord, t, window float64) (Snapshot, bool) {
	var sum types.EmotionVector
	var n int
	for _, r := range records {
		for _, reading := range r.Readings {
			if reading.Timestamp >= t-window && reading.Timestamp <= t+window {
				sum = sum.Plus(reading.Expressions)
				n++
			}
		}
	}
	if n == 0 {
		return Snapshot{QueryTime: t}, false
	}
	return Snapshot{
		QueryTime: t,
		Average:   sum.Scaled(1 / float64(n)),
		Readings:  n,
	}, true
}

// Bucketize partitions [0, stimulusDuration) into width-sized buckets and
// averages every reading falling in each. Buckets with zero readings are
// omitted; the result is sorted ascending by bucket start. Readings at or
// beyond the stimulus duration are ignored.
func Bucketize(records []types.ParticipantRecord, stimulusDuration, width float64) []Bucket {
	if stimulusDuration <= 0 || width <= 0 {
		return nil
	}

	type acc struct {
		sum types.EmotionVector
		n   int
	}
	byIndex := make(map[int]*acc)
	for _, r := range records {
		for _, reading := range r.Readings {
			ts := reading.Timestamp
			if ts < 0 || ts >= stimulusDuration {
				continue
			}
			idx := int(ts / width)
			a := byIndex[idx]
			if a == nil {
				a = &acc{}
				byIndex[idx] = a
			}
			a.sum = a.sum.Plus(reading.Expressions)
			a.n++
		}
	}

	out := make([]Bucket, 0, len(byIndex))
	for idx, a := range byIndex {
		out = append(out, Bucket{
			BucketStart: float64(idx) * width,
			Average:     a.sum.Scaled(1 / float64(a.n)),
			Readings:    a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out
}

// Engine applies the privacy gate and retains the prior snapshot across
// queries. Retention is keyed by the (normalized) filter, so a gap query
// under one filter never surfaces a view computed under another. Safe for
// concurrent use.
type Engine struct {
	cfg Config

	mu   sync.Mutex
	prev map[Filter]Snapshot // last exposed snapshot per filter, for gap retention
}

// NewEngine creates an engine with defaults filled in.
func NewEngine(cfg Config) *Engine {
	cfg.fill()
	return &Engine{cfg: cfg, prev: make(map[Filter]Snapshot)}
}

// Snapshot returns the gated instantaneous view at query time t over the
// filtered record set. When no readings fall in the window, the prior
// snapshot exposed under the same filter is returned with Retained set; if
// none exists yet, an empty snapshot is returned.
func (e *Engine) Snapshot(records []types.ParticipantRecord, f Filter, t float64) Result[Snapshot] {
	filtered := FilterRecords(records, f)
	count := DistinctParticipants(filtered)
	if count < e.cfg.MinParticipants {
		return Result[Snapshot]{Suppressed: true, ParticipantCount: count}
	}

	snap, ok := SnapshotAt(filtered, t, e.cfg.SnapshotWindow)
	key := f.normalized()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !ok {
		if prior, seen := e.prev[key]; seen {
			prior.QueryTime = t
			prior.Retained = true
			return Result[Snapshot]{ParticipantCount: count, View: prior}
		}
		return Result[Snapshot]{ParticipantCount: count, View: snap}
	}
	e.prev[key] = snap
	return Result[Snapshot]{ParticipantCount: count, View: snap}
}

// Timeline returns the gated sparse bucket sequence over the filtered
// record set for a stimulus of the given duration.
func (e *Engine) Timeline(records []types.ParticipantRecord, f Filter, stimulusDuration float64) Result[[]Bucket] {
	filtered := FilterRecords(records, f)
	count := DistinctParticipants(filtered)
	if count < e.cfg.MinParticipants {
		return Result[[]Bucket]{Suppressed: true, ParticipantCount: count}
	}
	return Result[[]Bucket]{
		ParticipantCount: count,
		View:             Bucketize(filtered, stimulusDuration, e.cfg.BucketWidth),
	}
}
