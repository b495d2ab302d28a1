// Package store persists finalized capture sessions and participant
// demographics as JSON documents on the local filesystem, and reads them
// back joined into participant records for aggregation.
//
// Layout under the data directory:
//
//	sessions/<participant>_<stimulus>_<unix-nanos>.json
//	demographics/<participant>.json
//
// Writes go through a temp-file rename so a crash mid-write never leaves a
// truncated document behind. Reads skip malformed documents instead of
// failing the whole scan; a study directory with one corrupt file still
// yields every healthy record.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

var (
	// ErrParticipantRequired is returned when a write carries no participant
	// identity
	ErrParticipantRequired = errors.New("participant id is required")

	// ErrStimulusRequired is returned when a session write carries no
	// stimulus identity
	ErrStimulusRequired = errors.New("stimulus id is required")
)

// sessionDoc is the on-disk shape of one finalized session.
type sessionDoc struct {
	ParticipantID string                   `json:"participant_id"`
	StimulusID    string                   `json:"stimulus_id"`
	Readings      []types.SentimentReading `json:"readings"`
	Duration      types.ReconciledDuration `json:"duration"`
	Media         *types.Media             `json:"media,omitempty"`
	RecordedAt    time.Time                `json:"recorded_at"`
}

// demographicsDoc is the on-disk shape of one participant's demographics.
type demographicsDoc struct {
	ParticipantID string             `json:"participant_id"`
	Demographics  types.Demographics `json:"demographics"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Stats is a snapshot of store counters.
type Stats struct {
	SessionWrites     uint64
	DemographicWrites uint64
	ReadScans         uint64
	SkippedMalformed  uint64
}

// Store is a filesystem-backed session and demographics archive. Safe for
// concurrent use.
type Store struct {
	dir string

	mu sync.Mutex // serializes writes within one process

	sessionWrites     atomic.Uint64
	demographicWrites atomic.Uint64
	readScans         atomic.Uint64
	skippedMalformed  atomic.Uint64
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	for _, sub := range []string{"sessions", "demographics"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s dir: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

// WriteSession persists one finalized session document.
func (s *Store) WriteSession(ctx context.Context, participantID, stimulusID string,
	readings []types.SentimentReading, duration types.ReconciledDuration,
	media *types.Media) error {

	if participantID == "" {
		return ErrParticipantRequired
	}
	if stimulusID == "" {
		return ErrStimulusRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := sessionDoc{
		ParticipantID: participantID,
		StimulusID:    stimulusID,
		Readings:      readings,
		Duration:      duration,
		Media:         media,
		RecordedAt:    time.Now().UTC(),
	}
	name := fmt.Sprintf("%s_%s_%d.json",
		sanitize(participantID), sanitize(stimulusID), time.Now().UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeJSON(filepath.Join(s.dir, "sessions", name), doc); err != nil {
		return fmt.Errorf("store: write session: %w", err)
	}
	s.sessionWrites.Add(1)

	slog.Info("store: session persisted",
		"participant_id", participantID,
		"stimulus_id", stimulusID,
		"readings", len(readings),
		"duration_s", duration.Seconds,
		"has_media", media != nil,
	)
	return nil
}

// WriteDemographics persists (or replaces) one participant's demographics.
func (s *Store) WriteDemographics(ctx context.Context, participantID string,
	d types.Demographics) error {

	if participantID == "" {
		return ErrParticipantRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := demographicsDoc{
		ParticipantID: participantID,
		Demographics:  d,
		UpdatedAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, "demographics", sanitize(participantID)+".json")
	if err := s.writeJSON(path, doc); err != nil {
		return fmt.Errorf("store: write demographics: %w", err)
	}
	s.demographicWrites.Add(1)
	return nil
}

// ReadRecords scans the session documents for one stimulus, joins each
// with the matching demographics by participant identity, and returns the
// combined records. Sessions recorded under a different stimulus are
// excluded; an empty stimulusID scans everything. A session with no
// demographics document gets zero-valued demographics. Malformed documents
// are counted and skipped.
func (s *Store) ReadRecords(ctx context.Context, stimulusID string) ([]types.ParticipantRecord, error) {
	s.readScans.Add(1)

	demos, err := s.readDemographics(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("store: scan sessions: %w", err)
	}

	var records []types.ParticipantRecord
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, "sessions", e.Name())

		var doc sessionDoc
		if !s.readJSON(path, &doc) {
			continue
		}
		if doc.ParticipantID == "" || doc.StimulusID == "" {
			s.skippedMalformed.Add(1)
			slog.Warn("store: session document missing identity, skipped", "path", path)
			continue
		}
		if stimulusID != "" && doc.StimulusID != stimulusID {
			continue
		}

		records = append(records, types.ParticipantRecord{
			ParticipantID: doc.ParticipantID,
			StimulusID:    doc.StimulusID,
			Demographics:  demos[doc.ParticipantID],
			Readings:      doc.Readings,
			Duration:      doc.Duration,
			RecordedAt:    doc.RecordedAt,
		})
	}
	return records, nil
}

// readDemographics loads every demographics document keyed by participant.
func (s *Store) readDemographics(ctx context.Context) (map[string]types.Demographics, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "demographics"))
	if err != nil {
		return nil, fmt.Errorf("store: scan demographics: %w", err)
	}

	out := make(map[string]types.Demographics, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var doc demographicsDoc
		if !s.readJSON(filepath.Join(s.dir, "demographics", e.Name()), &doc) {
			continue
		}
		if doc.ParticipantID == "" {
			s.skippedMalformed.Add(1)
			continue
		}
		out[doc.ParticipantID] = doc.Demographics
	}
	return out, nil
}

// readJSON decodes one document, counting and logging malformed files.
func (s *Store) readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		s.skippedMalformed.Add(1)
		slog.Warn("store: unreadable document, skipped", "path", path, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.skippedMalformed.Add(1)
		slog.Warn("store: malformed document, skipped", "path", path, "error", err)
		return false
	}
	return true
}

// writeJSON writes atomically via temp file and rename.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() Stats {
	return Stats{
		SessionWrites:     s.sessionWrites.Load(),
		DemographicWrites: s.demographicWrites.Load(),
		ReadScans:         s.readScans.Load(),
		SkippedMalformed:  s.skippedMalformed.Load(),
	}
}

// sanitize keeps filenames shell and filesystem safe.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
