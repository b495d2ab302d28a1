package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// MockAcquirer hands out synthetic streams. Used when no device is
// configured and throughout the test suite.
type MockAcquirer struct {
	// FailKind, when set, makes Acquire fail with that kind (for testing
	// the retryable acquisition paths)
	FailKind *ErrorKind
}

// Acquire returns a running mock stream, or the configured typed failure.
func (a *MockAcquirer) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if a.FailKind != nil {
		return nil, &AcquireError{Kind: *a.FailKind, Device: c.Device,
			Err: fmt.Errorf("mock acquisition failure")}
	}

	fps := c.FPS
	if fps <= 0 {
		fps = 15
	}
	m := &mockStream{
		width:  c.Width,
		height: c.Height,
		fps:    fps,
		frames: make(chan types.Frame, 10),
		stopCh: make(chan struct{}),
	}
	m.startTime = time.Now()
	m.isRunning.Store(true)

	m.wg.Add(1)
	go m.generateFrames(ctx)

	slog.Info("camera: mock stream started",
		"resolution", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"fps", fps,
	)
	return m, nil
}

// mockStream generates synthetic black RGB frames at the target FPS.
type mockStream struct {
	width  int
	height int
	fps    float64

	frames chan types.Frame
	stopCh chan struct{}
	wg     sync.WaitGroup

	seq       uint64
	dropped   uint64
	isRunning atomic.Bool
	stopOnce  sync.Once
	startTime time.Time
}

func (m *mockStream) Frames() <-chan types.Frame { return m.frames }

func (m *mockStream) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		close(m.frames)
		m.isRunning.Store(false)
		slog.Info("camera: mock stream stopped",
			"frames_emitted", atomic.LoadUint64(&m.seq),
		)
	})
	return nil
}

func (m *mockStream) Stats() types.StreamStats {
	count := atomic.LoadUint64(&m.seq)
	var fpsReal float64
	if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
		fpsReal = float64(count) / elapsed
	}
	return types.StreamStats{
		FrameCount:    count,
		FramesDropped: atomic.LoadUint64(&m.dropped),
		FPSTarget:     m.fps,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", m.width, m.height),
		SourceStream:  "mock",
		IsConnected:   m.isRunning.Load(),
	}
}

func (m *mockStream) generateFrames(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			frame := m.createFrame()
			select {
			case m.frames <- frame:
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			default:
				atomic.AddUint64(&m.dropped, 1)
			}
		}
	}
}

func (m *mockStream) createFrame() types.Frame {
	seq := atomic.AddUint64(&m.seq, 1)
	return types.Frame{
		Seq:          seq,
		Timestamp:    time.Now(),
		Width:        m.width,
		Height:       m.height,
		Data:         make([]byte, m.width*m.height*3),
		SourceStream: "mock",
		TraceID:      uuid.New().String(),
	}
}
