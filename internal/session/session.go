// Package session implements the capture session state machine.
//
// One session covers one participant's attempt at the stimulus-plus-capture
// flow: it owns the camera stream, drives the expression sampler on a fixed
// cadence, feeds the recorder, and on termination reconciles the duration
// and hands the captured readings to persistence.
//
// # Concurrency model
//
// Three asynchronous activities interleave: the sampling ticker, the
// recorder's stop completion, and caller-driven lifecycle commands. All of
// them are serialized through a single event mailbox consumed by one loop
// goroutine that owns every piece of mutable state. There is no lock-based
// mutual exclusion over the reading buffer; correctness relies on
//
//   - the single authoritative state variable, consulted by every event
//     handler before it acts, and
//   - value-capture of the reading buffer and stimulus clock at the
//     Finalizing transition, so later asynchronous completions can never
//     observe a mutated or truncated sequence.
//
// A classifier result that resolves after the Finalizing transition is
// discarded by the state check, not appended.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/bus"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/camera"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/classifier"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/reconcile"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/recorder"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/sampler"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

var (
	// ErrInvalidTransition is returned when a command is not legal in the
	// current state (e.g. Start before Arm)
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrSessionClosed is returned when commands are sent after Close
	ErrSessionClosed = errors.New("session is closed")
)

// StopReason records what triggered the Running → Finalizing transition.
type StopReason int

const (
	// StopManual is an explicit user stop action
	StopManual StopReason = iota
	// StopStimulusEnded means the stimulus media reached its natural end
	StopStimulusEnded
)

// String returns a human-readable reason.
func (r StopReason) String() string {
	switch r {
	case StopManual:
		return "manual-stop"
	case StopStimulusEnded:
		return "stimulus-ended"
	default:
		return "unknown"
	}
}

// StateChange is emitted to the Notifier on every transition.
type StateChange struct {
	SessionID     string
	ParticipantID string
	From, To      types.SessionState
	At            time.Time
	Detail        string
}

// Notifier receives state-change notifications. Implementations must not
// block; the loop calls them inline.
type Notifier interface {
	SessionStateChanged(ev StateChange)
}

// Persister accepts the finalized session payload. Writes are
// fire-and-forget from the session's perspective: failures are reported
// but never re-open the session.
type Persister interface {
	WriteSession(ctx context.Context, participantID, stimulusID string,
		readings []types.SentimentReading, duration types.ReconciledDuration,
		media *types.Media) error
}

// Config carries the per-session tunables. All cadence and bound values
// come from configuration — nothing here is a package-level global.
type Config struct {
	ParticipantID string
	StimulusID    string

	// SamplePeriod is the classifier sampling cadence (default 500ms)
	SamplePeriod time.Duration
	// Debounce is the minimum spacing between stored readings (default 400ms)
	Debounce time.Duration
	// DurationBounds is the reconciler validity window
	DurationBounds reconcile.Bounds

	// Camera is the acquisition constraint set
	Camera camera.Constraints
	// Recording, when non-nil, enables best-effort recording
	Recording *recorder.Config
}

// Deps carries the session's collaborators.
type Deps struct {
	Acquirer   camera.Acquirer
	Classifier classifier.Classifier
	// Recorders may be nil; recording is then disabled outright
	Recorders recorder.Factory
	Store     Persister
	// Notifier may be nil
	Notifier Notifier
}

// Stats is a snapshot of session counters.
type Stats struct {
	State         types.SessionState
	Readings      int
	Ticks         uint64
	DebounceDrops uint64
	Sampler       sampler.Stats
	Bus           bus.Stats
	SlotOverwrite uint64
	RecorderOn    bool
}

// Session is one participant capture attempt. Create with New, drive with
// Arm/Start/Stop, release with Teardown or Close.
type Session struct {
	cfg  Config
	deps Deps
	id   string

	events chan event
	closed chan struct{}
	final  chan struct{} // closed when Completed or Failed

	// stateMirror lets State() read without touching the loop
	stateMirror atomic.Int32

	// Everything below is owned by the loop goroutine.
	state         types.SessionState
	stream        camera.Stream
	frameBus      *bus.Bus
	slot          *bus.LatestSlot
	smp           *sampler.Sampler
	rec           recorder.Recorder
	recFrames     chan types.Frame
	recActive     bool
	readings      []types.SentimentReading
	stimulusStart time.Time

	// capturedReadings/capturedClock hold the value-captured payload while
	// an async recorder stop is in flight between Finalizing and Completed.
	// stopPending marks that window; teardown and close consult it so the
	// captured payload still reaches persistence when they overtake the stop.
	capturedReadings []types.SentimentReading
	capturedClock    float64
	stopPending      bool
	tickCancel    context.CancelFunc
	pumpCancel    context.CancelFunc
	loopCtx       context.Context
	loopCancel    context.CancelFunc

	ticks         atomic.Uint64
	debounceDrops atomic.Uint64
}

type eventKind int

const (
	evArm eventKind = iota
	evStart
	evStop
	evTick
	evSample
	evRecorderDone
	evTeardown
	evClose
	evReadings
	evStats
)

type event struct {
	kind    eventKind
	reply   chan error
	ctx     context.Context
	reason  StopReason
	reading types.SentimentReading
	outcome sampler.Outcome
	recRes  recorder.Result
	recErr  error

	readingsOut chan []types.SentimentReading
	statsOut    chan Stats
}

// New creates a session in Idle and starts its event loop.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Acquirer == nil {
		return nil, fmt.Errorf("session: camera acquirer is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("session: classifier is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("session: persister is required")
	}
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = 500 * time.Millisecond
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 400 * time.Millisecond
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		id:     uuid.New().String(),
		events: make(chan event, 32),
		closed: make(chan struct{}),
		final:  make(chan struct{}),
		smp:    sampler.New(deps.Classifier),
		state:  types.StateIdle,
	}
	s.loopCtx, s.loopCancel = context.WithCancel(context.Background())
	s.stateMirror.Store(int32(types.StateIdle))

	go s.run()
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current authoritative state.
func (s *Session) State() types.SessionState {
	return types.SessionState(s.stateMirror.Load())
}

// Done is closed once the session reaches Completed or Failed.
func (s *Session) Done() <-chan struct{} { return s.final }

// Arm acquires the camera stream. Legal only in Idle; a typed acquisition
// failure leaves the session Idle and retryable.
func (s *Session) Arm(ctx context.Context) error {
	return s.command(event{kind: evArm, ctx: ctx})
}

// Start begins the stimulus clock, sampling and (best-effort) recording.
// Legal only in Armed.
func (s *Session) Start() error {
	return s.command(event{kind: evStart})
}

// Stop triggers finalization. Legal only in Running; manual stop and
// natural stimulus end both route through here.
func (s *Session) Stop(reason StopReason) error {
	return s.command(event{kind: evStop, reason: reason})
}

// Teardown releases the camera, timers and recorder without finalizing.
// Partial data is NOT persisted (documented best-effort). Never panics and
// never returns an error; release failures are logged inside.
func (s *Session) Teardown() {
	_ = s.command(event{kind: evTeardown})
}

// Close tears down and stops the event loop. Idempotent.
func (s *Session) Close() {
	select {
	case <-s.closed:
		return
	default:
	}
	_ = s.command(event{kind: evClose})
}

// Readings returns a copy of the reading sequence collected so far.
func (s *Session) Readings() []types.SentimentReading {
	reply := make(chan error, 1)
	out := make(chan []types.SentimentReading, 1)
	select {
	case s.events <- event{kind: evReadings, reply: reply, readingsOut: out}:
		<-reply
		return <-out
	case <-s.closed:
		return nil
	}
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	reply := make(chan error, 1)
	out := make(chan Stats, 1)
	select {
	case s.events <- event{kind: evStats, reply: reply, statsOut: out}:
		<-reply
		return <-out
	case <-s.closed:
		return Stats{State: s.State()}
	}
}

// command posts an event and waits for the loop's verdict.
func (s *Session) command(ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case s.events <- ev:
	case <-s.closed:
		return ErrSessionClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-s.closed:
		return ErrSessionClosed
	}
}
