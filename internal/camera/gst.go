package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// GstAcquirer acquires local capture devices through GStreamer.
type GstAcquirer struct{}

// NewGstAcquirer returns an Acquirer backed by a v4l2src pipeline.
func NewGstAcquirer() *GstAcquirer { return &GstAcquirer{} }

// Acquire builds and starts the device pipeline. Failures are classified
// into typed AcquireErrors; the caller remains free to retry.
func (a *GstAcquirer) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if c.Device == "" {
		return nil, &AcquireError{Kind: KindNotFound, Device: c.Device,
			Err: fmt.Errorf("no capture device configured")}
	}
	if c.FPS < 0.1 || c.FPS > 60 {
		return nil, &AcquireError{Kind: KindOther, Device: c.Device,
			Err: fmt.Errorf("invalid fps %.2f (must be 0.1-60)", c.FPS)}
	}

	s := &gstStream{
		device: c.Device,
		width:  c.Width,
		height: c.Height,
		fps:    c.FPS,
		frames: make(chan types.Frame, 10),
	}

	if err := s.start(ctx); err != nil {
		return nil, &AcquireError{Kind: Classify(err), Device: c.Device, Err: err}
	}
	return s, nil
}

// gstStream implements Stream on top of a GStreamer device pipeline.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(RGB) → appsink
type gstStream struct {
	device string
	width  int
	height int
	fps    float64

	pipeline *gst.Pipeline
	appsink  *app.Sink

	frames chan types.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frameCount    uint64
	framesDropped uint64
	started       time.Time

	mu           sync.Mutex
	framesClosed bool
	connected    atomic.Bool
}

func (s *gstStream) start(ctx context.Context) error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", s.device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(s.width, s.height, s.fps)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	s.pipeline = pipeline
	s.appsink = appsink
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	s.connected.Store(true)

	s.wg.Add(1)
	go s.monitorBus()

	slog.Info("camera: device stream started",
		"device", s.device,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"fps", s.fps,
	)
	return nil
}

// onNewSample pulls a decoded sample from the appsink and forwards it as a
// Frame. A single bad sample is skipped, never fatal to the stream.
func (s *gstStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("camera: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("camera: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("camera: empty buffer received")
		return gst.FlowOK
	}

	// Copy frame data (GStreamer will reuse the buffer)
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := types.Frame{
		Seq:          atomic.AddUint64(&s.frameCount, 1),
		Timestamp:    time.Now(),
		Width:        s.width,
		Height:       s.height,
		Data:         frameData,
		SourceStream: s.device,
		TraceID:      uuid.New().String(),
	}

	select {
	case s.frames <- frame:
	case <-s.ctx.Done():
	default:
		// Channel full - drop frame, never queue
		atomic.AddUint64(&s.framesDropped, 1)
	}

	return gst.FlowOK
}

// monitorBus watches the pipeline bus. Errors mark the stream disconnected;
// the session decides what to do from Stats().
func (s *gstStream) monitorBus() {
	defer s.wg.Done()

	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("camera: end of stream received", "device", s.device)
				s.connected.Store(false)
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				slog.Error("camera: pipeline error",
					"device", s.device,
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"kind", Classify(fmt.Errorf("%s", gerr.Error())).String(),
				)
				s.connected.Store(false)
				return
			}
		}
	}
}

// Frames returns the frame channel.
func (s *gstStream) Frames() <-chan types.Frame { return s.frames }

// Stop releases the device. Idempotent; release failures are logged, never
// propagated — teardown must not throw.
func (s *gstStream) Stop() error {
	s.mu.Lock()
	if s.framesClosed {
		s.mu.Unlock()
		return nil
	}
	s.framesClosed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if s.pipeline != nil {
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			slog.Error("camera: failed to release pipeline", "device", s.device, "error", err)
		}
	}
	s.connected.Store(false)
	close(s.frames)

	slog.Info("camera: device stream stopped",
		"device", s.device,
		"frames", atomic.LoadUint64(&s.frameCount),
		"dropped", atomic.LoadUint64(&s.framesDropped),
		"uptime", time.Since(s.started),
	)
	return nil
}

// Stats returns current stream statistics.
func (s *gstStream) Stats() types.StreamStats {
	count := atomic.LoadUint64(&s.frameCount)
	var fpsReal float64
	if elapsed := time.Since(s.started).Seconds(); elapsed > 0 {
		fpsReal = float64(count) / elapsed
	}
	return types.StreamStats{
		FrameCount:    count,
		FramesDropped: atomic.LoadUint64(&s.framesDropped),
		FPSTarget:     s.fps,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", s.width, s.height),
		SourceStream:  s.device,
		IsConnected:   s.connected.Load(),
	}
}

// buildCaps builds a caps string with RGB format and framerate constraint.
// Fractional rates below 1 Hz map to 1/N.
func buildCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator)
}
