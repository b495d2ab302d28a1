// Package core wires the capture and aggregation components into one
// service: camera acquisition, the capture session lifecycle, persistence,
// the MQTT emitter and control plane, and the dashboard read side.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/aggregate"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/camera"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/classifier"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/config"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/control"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/dashboard"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/emitter"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/recorder"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/session"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/store"
)

// Service is the main orchestrator. One camera, at most one active
// capture session at a time.
type Service struct {
	cfg *config.Config

	// Core components
	store          *store.Store
	acquirer       camera.Acquirer
	classifier     classifier.Classifier
	recorders      recorder.Factory
	engine         *aggregate.Engine
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler
	dash           *dashboard.Server

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	current   *session.Session
	runCtx    context.Context
	cancelCtx context.CancelFunc // for the MQTT shutdown command
}

// NewService creates a service instance from a configuration file.
func NewService(configPath string) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"stimulus_id", cfg.Stimulus.ID,
	)

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Service{
		cfg:   cfg,
		store: st,
		engine: aggregate.NewEngine(aggregate.Config{
			BucketWidth:     cfg.Aggregate.BucketWidthS,
			SnapshotWindow:  cfg.Aggregate.SnapshotWindowS,
			MinParticipants: cfg.Aggregate.MinParticipants,
		}),
	}

	// The broker is optional: without one the service runs headless,
	// reachable only through the dashboard API.
	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg)
	}

	// Camera source: a real device when configured, a synthetic stream
	// otherwise (useful on hosts without v4l2)
	if cfg.Camera.Device != "" {
		s.acquirer = camera.NewGstAcquirer()
		slog.Info("using v4l2 camera source", "device", cfg.Camera.Device)
	} else {
		s.acquirer = &camera.MockAcquirer{}
		slog.Info("using synthetic camera source (no device configured)")
	}

	s.classifier = classifier.NewHTTP(classifier.HTTPConfig{
		URL:      cfg.Classifier.URL,
		Timeout:  time.Duration(cfg.Classifier.TimeoutMS) * time.Millisecond,
		MaxWidth: cfg.Classifier.MaxWidth,
	})

	if cfg.Recording.Enabled {
		s.recorders = recorder.NewGstFactory()
	}

	if cfg.Dashboard.Listen != "" {
		s.dash = dashboard.NewServer(dashboard.Config{
			Listen:           cfg.Dashboard.Listen,
			StimulusID:       cfg.Stimulus.ID,
			StimulusDuration: cfg.Stimulus.DurationS,
		}, st, s.engine)
	}

	return s, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.runCtx = ctx
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("sentiment service starting", "instance_id", s.cfg.InstanceID)

	// Connect MQTT and set up the control plane, unless running headless
	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}

		s.controlHandler = control.NewHandler(s.cfg, s.emitter.Client, control.CommandCallbacks{
			OnGetStatus:           s.getStatus,
			OnRegisterParticipant: s.registerParticipant,
			OnArm:                 s.armSession,
			OnStart:               s.startSession,
			OnStop:                s.stopSession,
			OnTeardown:            s.teardownSession,
			OnShutdown:            s.shutdownViaControl,
		})

		if err := s.controlHandler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	} else {
		slog.Info("no mqtt broker configured, running headless without a control plane")
	}

	// Start dashboard server
	if s.dash != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dash.Start(); err != nil {
				slog.Error("dashboard server failed", "error", err)
			}
		}()
	}

	// Start periodic stats logging
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logStats(ctx, 10*time.Second)
	}()

	slog.Info("sentiment service running",
		"dashboard", s.cfg.Dashboard.Listen,
		"recording", s.cfg.Recording.Enabled,
	)

	<-ctx.Done()

	slog.Info("sentiment service run loop exiting")
	return nil
}

// Shutdown performs graceful shutdown of all components.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down sentiment service")

	// 1. Close any active session first (releases the camera)
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()
	if current != nil {
		slog.Info("closing active session", "session_id", current.ID())
		current.Close()
	}

	// 2. Stop the dashboard
	if s.dash != nil {
		slog.Info("stopping dashboard")
		if err := s.dash.Shutdown(ctx); err != nil {
			slog.Error("failed to stop dashboard", "error", err)
		}
	}

	// 3. Stop control plane
	if s.controlHandler != nil {
		slog.Info("stopping control handler")
		if err := s.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 4. Wait for goroutines to finish
	slog.Info("waiting for goroutines to finish")
	s.wg.Wait()
	slog.Info("all goroutines finished")

	// 5. Disconnect MQTT
	if s.emitter != nil {
		if err := s.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("sentiment service shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (s *Service) ShutdownTimeout() time.Duration {
	return s.cfg.ShutdownTimeout()
}

// logStats periodically logs component counters.
func (s *Service) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			storeStats := s.store.Stats()

			attrs := []any{
				"sessions_persisted", storeStats.SessionWrites,
				"malformed_skipped", storeStats.SkippedMalformed,
			}
			if s.emitter != nil {
				emitStats := s.emitter.Stats()
				attrs = append(attrs,
					"mqtt_connected", emitStats.Connected,
					"mqtt_published", emitStats.Published,
				)
			}
			s.mu.RLock()
			if s.current != nil {
				st := s.current.Stats()
				attrs = append(attrs,
					"session_state", st.State.String(),
					"session_readings", st.Readings,
					"session_ticks", st.Ticks,
					"classifier_no_face", st.Sampler.NoFace,
					"classifier_skipped", st.Sampler.Skipped,
				)
			}
			s.mu.RUnlock()

			slog.Info("service stats", attrs...)
		}
	}
}
