// Package dashboard serves the read side over HTTP: participant counts,
// the gated aggregate views, and a websocket feed of live session state.
//
// Every aggregate query rebuilds its working set from storage wholesale.
// There is no incremental cache to synchronize; two concurrent requests
// each get their own consistent snapshot of the record set.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/aggregate"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// RecordSource yields the joined record set for one stimulus on each call.
type RecordSource interface {
	ReadRecords(ctx context.Context, stimulusID string) ([]types.ParticipantRecord, error)
}

// Config carries the dashboard server settings.
type Config struct {
	Listen string
	// StimulusID scopes every aggregate query; records persisted under an
	// earlier stimulus never enter the views
	StimulusID string
	// StimulusDuration bounds the timeline span in seconds
	StimulusDuration float64
}

// Server is the read-side HTTP server.
type Server struct {
	cfg    Config
	source RecordSource
	engine *aggregate.Engine
	hub    *Hub

	srv *http.Server
}

// NewServer wires the dashboard endpoints.
func NewServer(cfg Config, source RecordSource, engine *aggregate.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		source: source,
		engine: engine,
		hub:    NewHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/records/count", s.handleCount)
	mux.HandleFunc("GET /api/aggregate/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/aggregate/timeline", s.handleTimeline)
	mux.HandleFunc("GET /ws/live", s.hub.handleWS)

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub exposes the live-push hub for event producers.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("dashboard: listening", "addr", s.cfg.Listen)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

// handleCount reports the distinct participant count for the current
// filter. Never gated; the raw count stays visible below the privacy
// threshold.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	records, err := s.source.ReadRecords(r.Context(), s.cfg.StimulusID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	filtered := aggregate.FilterRecords(records, filterFromQuery(r))
	writeJSON(w, map[string]int{
		"participant_count": aggregate.DistinctParticipants(filtered),
	})
}

// handleSnapshot serves the instantaneous view at ?t=<seconds>.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || t < 0 {
		httpError(w, http.StatusBadRequest, errors.New("query parameter 't' must be a non-negative number"))
		return
	}

	records, err := s.source.ReadRecords(r.Context(), s.cfg.StimulusID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, s.engine.Snapshot(records, filterFromQuery(r), t))
}

// handleTimeline serves the sparse bucketed view.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	records, err := s.source.ReadRecords(r.Context(), s.cfg.StimulusID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, s.engine.Timeline(records, filterFromQuery(r), s.cfg.StimulusDuration))
}

// filterFromQuery reads the demographic filter from query parameters.
// Absent parameters behave like the "all" sentinel.
func filterFromQuery(r *http.Request) aggregate.Filter {
	q := r.URL.Query()
	return aggregate.Filter{
		AgeBand:     q.Get("age_band"),
		Gender:      q.Get("gender"),
		Race:        q.Get("race"),
		Nationality: q.Get("nationality"),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("dashboard: response encode failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
