package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// containerPlan maps a container choice onto its encoder/muxer elements.
type containerPlan struct {
	encoder string
	muxer   string
	ext     string
	mime    string
}

func planFor(container string) containerPlan {
	switch container {
	case "mp4":
		return containerPlan{encoder: "x264enc", muxer: "mp4mux", ext: "mp4", mime: "video/mp4"}
	default:
		return containerPlan{encoder: "vp8enc", muxer: "webmmux", ext: "webm", mime: "video/webm"}
	}
}

// GstFactory builds GStreamer-backed recorders. Encoder availability is
// probed at New() time so the session learns about a missing codec before
// it starts relying on recording.
type GstFactory struct{}

// NewGstFactory returns a Factory backed by GStreamer encoders.
func NewGstFactory() *GstFactory { return &GstFactory{} }

// New probes for the configured encoder and returns a recorder, or
// ErrEncoderUnavailable when the host cannot encode.
func (f *GstFactory) New(sessionID string, cfg Config) (Recorder, error) {
	gst.Init(nil)

	plan := planFor(cfg.Container)
	if probe, err := gst.NewElement(plan.encoder); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoderUnavailable, plan.encoder, err)
	} else if probe != nil {
		probe.Unref()
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder output dir: %w", err)
	}

	return &gstRecorder{
		cfg:  cfg,
		plan: plan,
		path: filepath.Join(cfg.OutputDir, fmt.Sprintf("%s.%s", sessionID, plan.ext)),
	}, nil
}

// gstRecorder encodes frames through an appsrc-fed pipeline:
//
//	appsrc(RGB) → videoconvert → encoder → muxer → filesink
type gstRecorder struct {
	cfg  Config
	plan containerPlan
	path string

	pipeline *gst.Pipeline
	appsrc   *app.Source

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
	frames  uint64

	mu      sync.Mutex
	running bool
}

// Start builds and starts the encode pipeline, then begins consuming
// frames in the background.
func (r *gstRecorder) Start(ctx context.Context, frames <-chan types.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("recorder already started")
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("failed to create appsrc: %w", err)
	}
	appsrc.SetProperty("is-live", true)
	appsrc.SetProperty("format", 3) // GST_FORMAT_TIME
	appsrc.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		r.cfg.Width, r.cfg.Height, int(r.cfg.FPS),
	)))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}
	encoder, err := gst.NewElement(r.plan.encoder)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncoderUnavailable, r.plan.encoder, err)
	}
	muxer, err := gst.NewElement(r.plan.muxer)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", r.plan.muxer, err)
	}
	sink, err := gst.NewElement("filesink")
	if err != nil {
		return fmt.Errorf("failed to create filesink: %w", err)
	}
	sink.SetProperty("location", r.path)

	pipeline.AddMany(appsrc.Element, converter, encoder, muxer, sink)
	if err := gst.ElementLinkMany(appsrc.Element, converter, encoder, muxer, sink); err != nil {
		return fmt.Errorf("failed to link recorder pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start recorder pipeline: %w", err)
	}

	r.pipeline = pipeline
	r.appsrc = appsrc
	r.started = time.Now()
	r.running = true

	feedCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.feed(feedCtx, frames)

	slog.Info("recorder: started",
		"path", r.path,
		"encoder", r.plan.encoder,
		"resolution", fmt.Sprintf("%dx%d", r.cfg.Width, r.cfg.Height),
	)
	return nil
}

// feed pushes frames into the appsrc until the context is cancelled or the
// channel closes. A failed push stops the feed; the partial file is still
// finalized by Stop.
func (r *gstRecorder) feed(ctx context.Context, frames <-chan types.Frame) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			buf := gst.NewBufferFromBytes(frame.Data)
			if ret := r.appsrc.PushBuffer(buf); ret != gst.FlowOK {
				slog.Warn("recorder: push buffer failed, stopping feed",
					"flow", int(ret), "seq", frame.Seq)
				return
			}
			atomic.AddUint64(&r.frames, 1)
		}
	}
}

// Stop flushes the container and returns the media result. Blocks until
// the muxer has written EOS or a bounded timeout passes; a timeout yields
// an error but the partial file path is still reported when it exists.
func (r *gstRecorder) Stop() (Result, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("recorder not running")
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	stoppedAt := time.Now()
	res := Result{StartedAt: r.started, StoppedAt: stoppedAt}

	// Signal EOS so the muxer finalizes the container
	r.appsrc.EndStream()
	flushErr := r.awaitEOS(3 * time.Second)

	if err := r.pipeline.SetState(gst.StateNull); err != nil {
		slog.Error("recorder: failed to release pipeline", "error", err)
	}

	if info, err := os.Stat(r.path); err == nil && info.Size() > 0 {
		res.Media = &types.Media{Path: r.path, MIME: r.plan.mime, SizeBytes: info.Size()}
	}

	slog.Info("recorder: stopped",
		"path", r.path,
		"frames", atomic.LoadUint64(&r.frames),
		"span_s", stoppedAt.Sub(r.started).Seconds(),
		"flush_ok", flushErr == nil,
	)
	return res, flushErr
}

// awaitEOS waits for the muxer to acknowledge end-of-stream.
func (r *gstRecorder) awaitEOS(timeout time.Duration) error {
	bus := r.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("recorder flush error: %s", gerr.Error())
		}
	}
	return fmt.Errorf("recorder flush timed out after %s", timeout)
}
