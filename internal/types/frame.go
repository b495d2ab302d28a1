package types

import "time"

// Frame is a single decoded video frame.
//
// Data is raw interleaved RGB (Width × Height × 3 bytes). Frames are shared
// by reference between the bus, the sampler and the recorder, so Data MUST
// NOT be modified after the frame leaves the camera source.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the camera source
	Seq uint64
	// Timestamp is when the frame was captured/decoded (wall clock)
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the raw RGB frame bytes
	Data []byte
	// SourceStream identifies the producing source (e.g. "webcam-0", "mock")
	SourceStream string
	// TraceID is a unique identifier for tracing a frame through the pipeline
	TraceID string
}

// StreamStats contains current camera stream statistics.
type StreamStats struct {
	// FrameCount is the total number of frames produced
	FrameCount uint64
	// FramesDropped is the total number of frames dropped (channel full)
	FramesDropped uint64
	// FPSTarget is the configured target FPS
	FPSTarget float64
	// FPSReal is the measured real FPS
	FPSReal float64
	// Resolution is the frame resolution (e.g. "1280x720")
	Resolution string
	// SourceStream identifies the stream
	SourceStream string
	// IsConnected indicates if the source is currently live
	IsConnected bool
}
