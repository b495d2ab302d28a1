// Package recorder captures the camera stream to a media file alongside
// expression sampling.
//
// Recording is strictly best-effort: a missing encoder, a failed start or
// a failed stop never interrupts data collection. The session treats
// ErrEncoderUnavailable as a degraded-capability hint and keeps sampling.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// ErrEncoderUnavailable is returned by a Factory when no supported video
// encoder is present on the host. Non-fatal by contract.
var ErrEncoderUnavailable = errors.New("no supported video encoder available")

// Result is what a stopped recorder hands back.
type Result struct {
	// Media describes the recorded artifact; nil when nothing was written
	Media *types.Media
	// StartedAt/StoppedAt bound the recording on the wall clock
	StartedAt time.Time
	StoppedAt time.Time
	// OverrideSeconds is a duration the recorder derived from its own
	// timing (e.g. container metadata); nil when unavailable
	OverrideSeconds *float64
}

// Span returns the wall-clock recording length in seconds, or nil when the
// timestamps are unusable.
func (r Result) Span() *float64 {
	if r.StartedAt.IsZero() || r.StoppedAt.IsZero() || r.StoppedAt.Before(r.StartedAt) {
		return nil
	}
	s := r.StoppedAt.Sub(r.StartedAt).Seconds()
	return &s
}

// Recorder encodes a frame stream to a media file.
//
// Start returns once the encoder is running; frames are consumed from the
// supplied channel until Stop. Stop blocks until the container is flushed
// and is therefore called from a goroutine by the session, which awaits
// the result as an event.
type Recorder interface {
	Start(ctx context.Context, frames <-chan types.Frame) error
	Stop() (Result, error)
}

// Config describes the media geometry the recorder encodes.
type Config struct {
	OutputDir string
	Container string // webm or mp4
	Width     int
	Height    int
	FPS       float64
}

// Factory creates one recorder per session attempt. New probes encoder
// availability and returns ErrEncoderUnavailable when recording cannot
// work on this host.
type Factory interface {
	New(sessionID string, cfg Config) (Recorder, error)
}
