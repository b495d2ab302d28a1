package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/camera"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/dashboard"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/reconcile"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/recorder"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/session"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// getStatus reports service and session state for the control plane.
func (s *Service) getStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id": s.cfg.InstanceID,
		"stimulus_id": s.cfg.Stimulus.ID,
		"uptime_s":    time.Since(s.started).Seconds(),
		"running":     s.isRunning,
	}
	if s.current != nil {
		st := s.current.Stats()
		status["session"] = map[string]interface{}{
			"session_id":     s.current.ID(),
			"state":          st.State.String(),
			"readings":       st.Readings,
			"ticks":          st.Ticks,
			"debounce_drops": st.DebounceDrops,
			"recording":      st.RecorderOn,
		}
	}
	return status
}

// registerParticipant stores demographics ahead of a capture attempt.
func (s *Service) registerParticipant(participantID string, demo map[string]interface{}) error {
	str := func(key string) string {
		v, _ := demo[key].(string)
		return v
	}
	d := types.Demographics{
		AgeBand:     str("age_band"),
		Gender:      str("gender"),
		Race:        str("race"),
		Nationality: str("nationality"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.store.WriteDemographics(ctx, participantID, d)
}

// armSession creates a fresh session for the participant and arms the
// camera. Only one session may hold the camera at a time.
func (s *Service) armSession(participantID string) error {
	s.mu.Lock()
	if s.current != nil {
		state := s.current.State()
		if state != types.StateCompleted && state != types.StateFailed {
			id := s.current.ID()
			s.mu.Unlock()
			return fmt.Errorf("session %s is still %s; teardown first", id, state)
		}
		s.current.Close()
		s.current = nil
	}
	s.mu.Unlock()

	width, height := camera.ParseResolution(s.cfg.Camera.Resolution)
	cfg := session.Config{
		ParticipantID: participantID,
		StimulusID:    s.cfg.Stimulus.ID,
		SamplePeriod:  s.cfg.SamplePeriod(),
		Debounce:      s.cfg.Debounce(),
		DurationBounds: reconcile.Bounds{
			MinSeconds: s.cfg.Duration.MinS,
			MaxSeconds: s.cfg.Duration.MaxS,
		},
		Camera: camera.Constraints{
			Device: s.cfg.Camera.Device,
			Width:  width,
			Height: height,
			FPS:    s.cfg.Camera.FPS,
		},
	}
	if s.cfg.Recording.Enabled {
		cfg.Recording = &recorder.Config{
			OutputDir: s.cfg.Recording.OutputDir,
			Container: s.cfg.Recording.Container,
			Width:     width,
			Height:    height,
			FPS:       s.cfg.Camera.FPS,
		}
	}

	sess, err := session.New(cfg, session.Deps{
		Acquirer:   s.acquirer,
		Classifier: s.classifier,
		Recorders:  s.recorders,
		Store:      s.store,
		Notifier:   s.notifier(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Arm(ctx); err != nil {
		sess.Close()
		return fmt.Errorf("arm failed (%s): %w", camera.KindOf(err), err)
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return nil
}

// startSession begins sampling on the armed session.
func (s *Service) startSession() error {
	sess := s.activeSession()
	if sess == nil {
		return fmt.Errorf("no armed session")
	}
	return sess.Start()
}

// stopSession finalizes the running session.
func (s *Service) stopSession(natural bool) error {
	sess := s.activeSession()
	if sess == nil {
		return fmt.Errorf("no active session")
	}
	reason := session.StopManual
	if natural {
		reason = session.StopStimulusEnded
	}
	return sess.Stop(reason)
}

// teardownSession abandons the current attempt and releases the camera.
func (s *Service) teardownSession() error {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no session to tear down")
	}
	sess.Teardown()
	sess.Close()
	return nil
}

// shutdownViaControl cancels the run context on behalf of the MQTT
// shutdown command.
func (s *Service) shutdownViaControl() error {
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()
	if cancel == nil {
		return fmt.Errorf("service not running")
	}
	slog.Info("shutdown requested via control plane")
	cancel()
	return nil
}

func (s *Service) activeSession() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// notifier fans state changes out to the MQTT emitter and, when the
// dashboard is up, its websocket clients. Either side may be absent;
// headless runs can end up with no notifier at all.
func (s *Service) notifier() session.Notifier {
	var emit session.Notifier
	if s.emitter != nil {
		emit = s.emitter
	}
	if s.dash == nil {
		return emit
	}
	return &fanNotifier{emit: emit, dash: s.dash}
}

type fanNotifier struct {
	emit session.Notifier // nil when running headless
	dash *dashboard.Server
}

// SessionStateChanged implements session.Notifier.
func (f *fanNotifier) SessionStateChanged(ev session.StateChange) {
	if f.emit != nil {
		f.emit.SessionStateChanged(ev)
	}

	payload, err := json.Marshal(map[string]string{
		"type":           "session_state",
		"session_id":     ev.SessionID,
		"participant_id": ev.ParticipantID,
		"from":           ev.From.String(),
		"to":             ev.To.String(),
		"detail":         ev.Detail,
		"at":             ev.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	f.dash.Hub().Broadcast(payload)
}
