package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// MockFactory builds in-memory recorders for tests. The failure knobs
// script the degraded paths the session must survive.
type MockFactory struct {
	// FailNew, when true, makes New return ErrEncoderUnavailable
	FailNew bool
	// FailStart, when set, makes Start return this error
	FailStart error
	// FailStop, when set, makes Stop return this error (a Result is still
	// returned with timing intact)
	FailStop error
	// Override, when set, is reported as the recorder-supplied duration
	Override *float64

	mu   sync.Mutex
	last *MockRecorder
}

// New implements Factory.
func (f *MockFactory) New(sessionID string, cfg Config) (Recorder, error) {
	if f.FailNew {
		return nil, ErrEncoderUnavailable
	}
	r := &MockRecorder{
		sessionID: sessionID,
		failStart: f.FailStart,
		failStop:  f.FailStop,
		override:  f.Override,
	}
	f.mu.Lock()
	f.last = r
	f.mu.Unlock()
	return r, nil
}

// Last returns the most recently created recorder, for assertions.
func (f *MockFactory) Last() *MockRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// MockRecorder counts frames and fabricates a media artifact.
type MockRecorder struct {
	sessionID string
	failStart error
	failStop  error
	override  *float64

	frames  atomic.Uint64
	started time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// Start implements Recorder.
func (r *MockRecorder) Start(ctx context.Context, frames <-chan types.Frame) error {
	if r.failStart != nil {
		return r.failStart
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("recorder already started")
	}
	r.running = true
	r.started = time.Now()

	feedCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-feedCtx.Done():
				return
			case _, ok := <-frames:
				if !ok {
					return
				}
				r.frames.Add(1)
			}
		}
	}()
	return nil
}

// Stop implements Recorder.
func (r *MockRecorder) Stop() (Result, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return Result{}, errors.New("recorder not running")
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	res := Result{
		StartedAt:       r.started,
		StoppedAt:       time.Now(),
		OverrideSeconds: r.override,
	}
	if r.failStop != nil {
		return res, r.failStop
	}
	res.Media = &types.Media{
		Path:      "mock://" + r.sessionID,
		MIME:      "video/webm",
		SizeBytes: int64(r.frames.Load()),
	}
	return res, nil
}

// FrameCount returns how many frames the recorder consumed.
func (r *MockRecorder) FrameCount() uint64 { return r.frames.Load() }
