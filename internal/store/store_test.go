package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sampleReadings() []types.SentimentReading {
	return []types.SentimentReading{
		{Timestamp: 0.5, Expressions: types.EmotionVector{Happy: 0.9, Neutral: 0.1}},
		{Timestamp: 1.0, Expressions: types.EmotionVector{Happy: 0.7, Neutral: 0.3}},
	}
}

func sampleDuration() types.ReconciledDuration {
	return types.ReconciledDuration{Seconds: 1.5, SourceName: "stimulus-clock", IsValid: true}
}

func TestWriteAndReadJoined(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	demo := types.Demographics{AgeBand: "25-34", Gender: "female", Race: "asian", Nationality: "JP"}
	if err := s.WriteDemographics(ctx, "p-1", demo); err != nil {
		t.Fatal(err)
	}
	media := &types.Media{Path: "/media/p-1.webm", MIME: "video/webm", SizeBytes: 1234}
	if err := s.WriteSession(ctx, "p-1", "stim-1", sampleReadings(), sampleDuration(), media); err != nil {
		t.Fatal(err)
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.ParticipantID != "p-1" || r.StimulusID != "stim-1" {
		t.Errorf("identity mismatch: %s/%s", r.ParticipantID, r.StimulusID)
	}
	if r.Demographics != demo {
		t.Errorf("demographics not joined: %+v", r.Demographics)
	}
	if len(r.Readings) != 2 {
		t.Errorf("readings not round-tripped, got %d", len(r.Readings))
	}
	if r.Duration.Seconds != 1.5 || !r.Duration.IsValid {
		t.Errorf("duration not round-tripped: %+v", r.Duration)
	}
}

func TestSessionWithoutDemographics(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.WriteSession(ctx, "p-2", "stim-1", sampleReadings(), sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("session without demographics must still be readable, got %d records", len(records))
	}
	if records[0].Demographics != (types.Demographics{}) {
		t.Errorf("expected zero-valued demographics, got %+v", records[0].Demographics)
	}
}

func TestMalformedDocumentsAreSkipped(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.WriteSession(ctx, "p-1", "stim-1", sampleReadings(), sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}

	// Corrupt document alongside the healthy one.
	dir := filepath.Join(s.dir, "sessions")
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Valid JSON but missing identity.
	if err := os.WriteFile(filepath.Join(dir, "noident.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatalf("a corrupt file must not fail the scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only the healthy record, got %d", len(records))
	}
	if s.Stats().SkippedMalformed != 2 {
		t.Errorf("expected 2 skipped documents, got %d", s.Stats().SkippedMalformed)
	}
}

func TestMultipleSessionsPerParticipant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.WriteSession(ctx, "p-1", "stim-1", sampleReadings(), sampleDuration(), nil); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("each finalized session is its own record, expected 3, got %d", len(records))
	}
}

func TestReadRecordsScopedToStimulus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Sessions from an earlier study configuration share the data dir.
	if err := s.WriteSession(ctx, "p-1", "stim-old", sampleReadings(), sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSession(ctx, "p-1", "stim-1", sampleReadings(), sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSession(ctx, "p-2", "stim-1", sampleReadings(), sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected only stim-1 records, got %d", len(records))
	}
	for _, r := range records {
		if r.StimulusID != "stim-1" {
			t.Errorf("record for %s leaked into the stim-1 scan", r.StimulusID)
		}
	}

	// An empty stimulus scans everything.
	all, err := s.ReadRecords(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("unscoped scan should see every session, got %d", len(all))
	}
}

func TestWriteValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.WriteSession(ctx, "", "stim-1", nil, sampleDuration(), nil); err != ErrParticipantRequired {
		t.Errorf("expected ErrParticipantRequired, got %v", err)
	}
	if err := s.WriteSession(ctx, "p-1", "", nil, sampleDuration(), nil); err != ErrStimulusRequired {
		t.Errorf("expected ErrStimulusRequired, got %v", err)
	}
	if err := s.WriteDemographics(ctx, "", types.Demographics{}); err != ErrParticipantRequired {
		t.Errorf("expected ErrParticipantRequired, got %v", err)
	}
}

func TestDemographicsReplaced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.WriteDemographics(ctx, "p-1", types.Demographics{Gender: "male"}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteDemographics(ctx, "p-1", types.Demographics{Gender: "female"}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSession(ctx, "p-1", "stim-1", nil, sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}

	records, err := s.ReadRecords(ctx, "stim-1")
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Demographics.Gender != "female" {
		t.Errorf("later demographics write should win, got %q", records[0].Demographics.Gender)
	}
}

func TestSanitizedFilenames(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.WriteSession(ctx, "p/..//1", "stim 1", nil, sampleDuration(), nil); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the write to land inside the sessions dir, got %d entries", len(entries))
	}
}
