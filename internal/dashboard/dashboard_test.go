package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/aggregate"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

type staticSource struct {
	records []types.ParticipantRecord
}

func (s *staticSource) ReadRecords(ctx context.Context, stimulusID string) ([]types.ParticipantRecord, error) {
	out := make([]types.ParticipantRecord, 0, len(s.records))
	for _, r := range s.records {
		if stimulusID == "" || r.StimulusID == stimulusID {
			out = append(out, r)
		}
	}
	return out, nil
}

func stimRecords(n int, stimulusID string, happyAt2 float64) []types.ParticipantRecord {
	records := make([]types.ParticipantRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, types.ParticipantRecord{
			ParticipantID: fmt.Sprintf("%s-p%02d", stimulusID, i),
			StimulusID:    stimulusID,
			Demographics:  types.Demographics{Gender: "female"},
			Readings: []types.SentimentReading{
				{Timestamp: 2, Expressions: types.EmotionVector{Happy: happyAt2}},
				{Timestamp: 7, Expressions: types.EmotionVector{Happy: 0.2}},
			},
		})
	}
	return records
}

func testServer(n int) *Server {
	return NewServer(Config{Listen: ":0", StimulusID: "stim-1", StimulusDuration: 120},
		&staticSource{records: stimRecords(n, "stim-1", 0.8)},
		aggregate.NewEngine(aggregate.Config{}))
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("bad response body: %v", err)
		}
	}
	return rec.Code
}

func TestCountEndpoint(t *testing.T) {
	s := testServer(3)

	var body map[string]int
	if code := get(t, s, "/api/records/count", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body["participant_count"] != 3 {
		t.Errorf("expected count 3, got %d", body["participant_count"])
	}

	// Count is never privacy-gated, even below the threshold.
	if body["participant_count"] >= 5 {
		t.Fatalf("test setup should be below the gate")
	}
}

func TestCountWithFilter(t *testing.T) {
	s := testServer(3)

	var body map[string]int
	get(t, s, "/api/records/count?gender=male", &body)
	if body["participant_count"] != 0 {
		t.Errorf("male filter should match nobody, got %d", body["participant_count"])
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s := testServer(6)

	var body aggregate.Result[aggregate.Snapshot]
	if code := get(t, s, "/api/aggregate/snapshot?t=2", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body.Suppressed {
		t.Fatal("6 participants should clear the gate")
	}
	if diff := body.View.Average.Happy - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected happy 0.8 at t=2, got %v", body.View.Average.Happy)
	}
}

func TestSnapshotSuppressedBelowGate(t *testing.T) {
	s := testServer(4)

	var body aggregate.Result[aggregate.Snapshot]
	get(t, s, "/api/aggregate/snapshot?t=2", &body)
	if !body.Suppressed {
		t.Error("4 participants must be suppressed")
	}
	if body.ParticipantCount != 4 {
		t.Errorf("count must survive suppression, got %d", body.ParticipantCount)
	}
}

func TestSnapshotRejectsBadQuery(t *testing.T) {
	s := testServer(6)
	if code := get(t, s, "/api/aggregate/snapshot?t=abc", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad time, got %d", code)
	}
	if code := get(t, s, "/api/aggregate/snapshot", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing time, got %d", code)
	}
}

func TestQueriesScopedToConfiguredStimulus(t *testing.T) {
	// The data dir also holds sessions from a previously configured
	// stimulus; they must not enter the views.
	records := append(stimRecords(6, "stim-1", 0.8), stimRecords(6, "stim-old", 0.0)...)
	s := NewServer(Config{Listen: ":0", StimulusID: "stim-1", StimulusDuration: 120},
		&staticSource{records: records},
		aggregate.NewEngine(aggregate.Config{}))

	var count map[string]int
	get(t, s, "/api/records/count", &count)
	if count["participant_count"] != 6 {
		t.Errorf("count must cover only the configured stimulus, got %d", count["participant_count"])
	}

	var snap aggregate.Result[aggregate.Snapshot]
	if code := get(t, s, "/api/aggregate/snapshot?t=2", &snap); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if snap.ParticipantCount != 6 {
		t.Errorf("snapshot count polluted by another stimulus: %d", snap.ParticipantCount)
	}
	if diff := snap.View.Average.Happy - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("readings from another stimulus shifted the mean: %v", snap.View.Average.Happy)
	}
}

func TestTimelineEndpoint(t *testing.T) {
	s := testServer(6)

	var body aggregate.Result[[]aggregate.Bucket]
	if code := get(t, s, "/api/aggregate/timeline", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(body.View) != 2 {
		t.Fatalf("expected 2 populated buckets, got %d", len(body.View))
	}
	if body.View[0].BucketStart != 0 || body.View[1].BucketStart != 5 {
		t.Errorf("bucket starts: %v, %v", body.View[0].BucketStart, body.View[1].BucketStart)
	}
}
