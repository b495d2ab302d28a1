package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/bus"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/camera"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/reconcile"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/recorder"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/sampler"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// run is the single goroutine that owns all session state.
func (s *Session) run() {
	for {
		select {
		case ev := <-s.events:
			if s.handle(ev) {
				return
			}
		case <-s.loopCtx.Done():
			s.rescuePendingFinalize("loop context cancelled")
			s.teardown("loop context cancelled")
			close(s.closed)
			return
		}
	}
}

// handle dispatches one event. Returns true when the loop should exit.
func (s *Session) handle(ev event) bool {
	switch ev.kind {
	case evArm:
		ev.reply <- s.handleArm(ev.ctx)
	case evStart:
		ev.reply <- s.handleStart()
	case evStop:
		ev.reply <- s.handleStop(ev.reason)
	case evTick:
		s.handleTick()
	case evSample:
		s.handleSample(ev)
	case evRecorderDone:
		s.handleRecorderDone(ev.recRes, ev.recErr)
	case evTeardown:
		s.rescuePendingFinalize("caller teardown")
		s.teardown("caller teardown")
		s.transition(types.StateIdle, "teardown")
		ev.reply <- nil
	case evClose:
		s.rescuePendingFinalize("session close")
		s.teardown("session close")
		ev.reply <- nil
		close(s.closed)
		s.loopCancel()
		return true
	case evReadings:
		out := make([]types.SentimentReading, len(s.readings))
		copy(out, s.readings)
		ev.reply <- nil
		ev.readingsOut <- out
	case evStats:
		ev.reply <- nil
		ev.statsOut <- s.snapshotStats()
	}
	return false
}

// handleArm performs Idle → Armed. Camera acquisition failures keep the
// session Idle and carry a typed kind; the caller may retry.
func (s *Session) handleArm(ctx context.Context) error {
	if s.state != types.StateIdle {
		return fmt.Errorf("%w: arm in %s", ErrInvalidTransition, s.state)
	}
	if ctx == nil {
		ctx = s.loopCtx
	}

	stream, err := s.deps.Acquirer.Acquire(ctx, s.cfg.Camera)
	if err != nil {
		slog.Warn("session: camera acquisition failed",
			"session_id", s.id,
			"kind", cameraKind(err),
			"error", err,
		)
		return err
	}

	s.stream = stream
	s.frameBus = bus.New()
	s.slot = bus.NewLatestSlot()

	// Pump camera frames into the latest-frame slot and the fan-out bus.
	pumpCtx, cancel := context.WithCancel(s.loopCtx)
	s.pumpCancel = cancel
	go func() {
		for {
			select {
			case <-pumpCtx.Done():
				return
			case frame, ok := <-stream.Frames():
				if !ok {
					return
				}
				s.slot.Put(frame)
				s.frameBus.Publish(frame)
			}
		}
	}()

	s.transition(types.StateArmed, "camera live")
	return nil
}

// handleStart performs Armed → Running: stimulus clock to t=0, sampling
// ticker on, recorder started best-effort.
func (s *Session) handleStart() error {
	if s.state != types.StateArmed {
		return fmt.Errorf("%w: start in %s", ErrInvalidTransition, s.state)
	}

	s.stimulusStart = time.Now()

	tickCtx, cancel := context.WithCancel(s.loopCtx)
	s.tickCancel = cancel
	go func() {
		ticker := time.NewTicker(s.cfg.SamplePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				select {
				case s.events <- event{kind: evTick}:
				case <-tickCtx.Done():
					return
				}
			}
		}
	}()

	s.startRecorder()

	s.transition(types.StateRunning, "sampling started")
	return nil
}

// startRecorder wires the recorder if configured. Any failure here is a
// degraded capability, never fatal: the session stays Running with
// sampling active and recording disabled.
func (s *Session) startRecorder() {
	if s.deps.Recorders == nil || s.cfg.Recording == nil {
		return
	}

	rec, err := s.deps.Recorders.New(s.id, *s.cfg.Recording)
	if err != nil {
		if errors.Is(err, recorder.ErrEncoderUnavailable) {
			slog.Warn("session: recording disabled, no supported encoder",
				"session_id", s.id)
		} else {
			slog.Warn("session: recorder creation failed, continuing without recording",
				"session_id", s.id, "error", err)
		}
		return
	}

	recFrames := make(chan types.Frame, 8)
	if err := s.frameBus.Subscribe("recorder", recFrames); err != nil {
		slog.Warn("session: recorder feed subscription failed", "session_id", s.id, "error", err)
		return
	}
	if err := rec.Start(s.loopCtx, recFrames); err != nil {
		_ = s.frameBus.Unsubscribe("recorder")
		slog.Warn("session: recorder start failed, continuing without recording",
			"session_id", s.id, "error", err)
		return
	}

	s.rec = rec
	s.recFrames = recFrames
	s.recActive = true
}

// handleTick fires one sampling attempt. Running only; the stimulus time
// is captured here, at tick time, so a slow classifier cannot shift the
// reading later on the stimulus clock.
func (s *Session) handleTick() {
	if s.state != types.StateRunning {
		return
	}
	s.ticks.Add(1)

	frame := s.slot.Peek()
	if frame == nil {
		return // camera has not produced a frame yet
	}
	stimulusTime := time.Since(s.stimulusStart).Seconds()

	go func(f types.Frame, t float64) {
		reading, outcome := s.smp.Sample(s.loopCtx, f, t)
		if outcome == sampler.OutcomeSkipped {
			return
		}
		select {
		case s.events <- event{kind: evSample, reading: reading, outcome: outcome}:
		case <-s.loopCtx.Done():
		}
	}(*frame, stimulusTime)
}

// handleSample appends a reading, subject to the state check and the
// debounce. A result arriving after the Finalizing transition is dropped
// here; this is the mechanical form of the value-capture guarantee.
func (s *Session) handleSample(ev event) {
	if s.state != types.StateRunning {
		return
	}
	if ev.outcome != sampler.OutcomeReading {
		return // no face: expected, nothing to record
	}

	if n := len(s.readings); n > 0 {
		minGap := s.cfg.Debounce.Seconds()
		if ev.reading.Timestamp < s.readings[n-1].Timestamp+minGap {
			s.debounceDrops.Add(1)
			return
		}
	}
	s.readings = append(s.readings, ev.reading)
}

// handleStop performs Running → Finalizing. The reading sequence and the
// stimulus clock are captured by value at this instant.
func (s *Session) handleStop(reason StopReason) error {
	if s.state != types.StateRunning {
		return fmt.Errorf("%w: stop in %s", ErrInvalidTransition, s.state)
	}

	captured := make([]types.SentimentReading, len(s.readings))
	copy(captured, s.readings)
	capturedClock := time.Since(s.stimulusStart).Seconds()

	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}

	s.transition(types.StateFinalizing, reason.String())

	if s.recActive {
		rec := s.rec
		// Hand the recorder off to the async stop; teardown must not see it
		// again or it would double-stop.
		s.recActive = false
		s.rec = nil
		go func() {
			res, err := rec.Stop()
			select {
			case s.events <- event{kind: evRecorderDone, recRes: res, recErr: err}:
			case <-s.loopCtx.Done():
			}
		}()
		// Finalization completes in handleRecorderDone with the captured
		// values stashed on the session. stopPending lets a teardown or
		// close that lands first finish the job instead.
		s.capturedReadings = captured
		s.capturedClock = capturedClock
		s.stopPending = true
		return nil
	}

	s.finalize(captured, capturedClock, recorder.Result{}, nil)
	return nil
}

// handleRecorderDone completes finalization once the recorder's async stop
// has resolved.
func (s *Session) handleRecorderDone(res recorder.Result, err error) {
	if s.state != types.StateFinalizing || !s.stopPending {
		// Late completion after teardown: the captured payload was already
		// forwarded and resources are released.
		return
	}
	s.finalize(s.capturedReadings, s.capturedClock, res, err)
}

// rescuePendingFinalize completes a finalization still awaiting the
// recorder's async stop when teardown or close overtakes it. The
// value-captured readings reach persistence without media, and Done()
// waiters are released.
func (s *Session) rescuePendingFinalize(why string) {
	if s.state != types.StateFinalizing || !s.stopPending {
		return
	}
	slog.Warn("session: teardown during finalization, forwarding captured readings without media",
		"session_id", s.id,
		"readings", len(s.capturedReadings),
		"why", why,
	)
	s.finalize(s.capturedReadings, s.capturedClock, recorder.Result{}, nil)
}

// finalize reconciles the duration, initiates the persistence handoff and
// lands in Completed or Failed. The captured readings are forwarded on
// every path: a recording or persistence fault never loses emotion data.
func (s *Session) finalize(captured []types.SentimentReading, capturedClock float64,
	res recorder.Result, recErr error) {

	s.stopPending = false

	sig := reconcile.Signals{StimulusClock: capturedClock}
	var media *types.Media
	if recErr != nil {
		slog.Error("session: recorder stop failed, forwarding readings without media",
			"session_id", s.id, "error", recErr)
	} else {
		sig.Override = res.OverrideSeconds
		sig.RecorderSpan = res.Span()
		media = res.Media
	}

	duration := reconcile.Reconcile(sig, s.cfg.DurationBounds)
	if !duration.IsValid {
		slog.Warn("session: reconciled duration out of bounds",
			"session_id", s.id,
			"seconds", duration.Seconds,
			"reason", duration.InvalidReason,
		)
	}

	// Fire-and-forget persistence: the session does not block Completed on
	// the write succeeding.
	go func(readings []types.SentimentReading, d types.ReconciledDuration, m *types.Media) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deps.Store.WriteSession(ctx, s.cfg.ParticipantID, s.cfg.StimulusID, readings, d, m); err != nil {
			slog.Error("session: persistence write failed",
				"session_id", s.id,
				"participant_id", s.cfg.ParticipantID,
				"error", err,
			)
		}
	}(captured, duration, media)

	s.teardown("finalized")

	if recErr != nil {
		s.transition(types.StateFailed, "recorder stop failed")
	} else {
		s.transition(types.StateCompleted, fmt.Sprintf("duration=%.3fs source=%s",
			duration.Seconds, duration.SourceName))
	}
	close(s.final)
}

// teardown releases every held resource. Must never panic: release
// failures are logged, not propagated. Safe to call repeatedly.
func (s *Session) teardown(why string) {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	if s.pumpCancel != nil {
		s.pumpCancel()
		s.pumpCancel = nil
	}
	if s.recActive {
		rec := s.rec
		s.recActive = false
		s.rec = nil
		// Force-stop without awaiting the result; nothing downstream
		// consumes it on this path.
		go func() {
			if _, err := rec.Stop(); err != nil {
				slog.Warn("session: recorder force-stop failed", "session_id", s.id, "error", err)
			}
		}()
	}
	if s.frameBus != nil {
		_ = s.frameBus.Close()
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			slog.Error("session: camera release failed", "session_id", s.id, "error", err)
		}
		s.stream = nil
	}
	slog.Debug("session: resources released", "session_id", s.id, "why", why)
}

// transition moves to a new state and notifies.
func (s *Session) transition(to types.SessionState, detail string) {
	from := s.state
	s.state = to
	s.stateMirror.Store(int32(to))

	slog.Info("session: state changed",
		"session_id", s.id,
		"participant_id", s.cfg.ParticipantID,
		"from", from.String(),
		"to", to.String(),
		"detail", detail,
	)

	if s.deps.Notifier != nil {
		s.deps.Notifier.SessionStateChanged(StateChange{
			SessionID:     s.id,
			ParticipantID: s.cfg.ParticipantID,
			From:          from,
			To:            to,
			At:            time.Now(),
			Detail:        detail,
		})
	}
}

func (s *Session) snapshotStats() Stats {
	st := Stats{
		State:         s.state,
		Readings:      len(s.readings),
		Ticks:         s.ticks.Load(),
		DebounceDrops: s.debounceDrops.Load(),
		Sampler:       s.smp.Stats(),
		RecorderOn:    s.recActive,
	}
	if s.frameBus != nil {
		st.Bus = s.frameBus.Stats()
	}
	if s.slot != nil {
		st.SlotOverwrite = s.slot.Overwrites()
	}
	return st
}

// cameraKind extracts a printable acquisition error kind.
func cameraKind(err error) string {
	return camera.KindOf(err).String()
}
