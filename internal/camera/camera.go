// Package camera provides exclusive camera stream acquisition for capture
// sessions.
//
// Acquisition failures carry a typed kind (permission, not-found, busy,
// other) so the session can report a retryable cause to the caller without
// parsing driver error strings itself. A Stream is exclusively owned by one
// active capture session; Stop() releases the device and is idempotent.
package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// ErrorKind classifies camera acquisition failures for the caller.
type ErrorKind int

const (
	// KindPermission indicates access to the device was denied
	KindPermission ErrorKind = iota
	// KindNotFound indicates no matching capture device exists
	KindNotFound
	// KindBusy indicates the device is held by another process
	KindBusy
	// KindOther indicates an unclassified acquisition failure
	KindOther
)

// String returns a human-readable string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPermission:
		return "permission-denied"
	case KindNotFound:
		return "not-found"
	case KindBusy:
		return "busy"
	case KindOther:
		return "other"
	default:
		return "other"
	}
}

// AcquireError is a typed camera acquisition failure. The session stays
// Idle when Acquire returns one; the operation is retryable.
type AcquireError struct {
	Kind   ErrorKind
	Device string
	Err    error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("camera acquire %s: %s: %v", e.Device, e.Kind, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from an acquisition error chain.
// Non-AcquireError values classify as KindOther.
func KindOf(err error) ErrorKind {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindOther
}

// Classify maps a raw device/driver error message onto an ErrorKind.
//
// Classification is based on message heuristics: GStreamer and V4L2 do not
// expose stable error codes across plugins, so string matching is the
// dependable common denominator.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "permission", "not authorized", "access denied", "operation not permitted"):
		return KindPermission
	case containsAny(msg, "no such file", "no such device", "not found", "cannot identify device"):
		return KindNotFound
	case containsAny(msg, "busy", "in use", "already in use", "resource temporarily unavailable"):
		return KindBusy
	default:
		return KindOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Constraints describe the requested capture format.
type Constraints struct {
	// Device is the capture device path (e.g. /dev/video0)
	Device string
	// Width and Height are the requested frame dimensions
	Width  int
	Height int
	// FPS is the requested source frame rate
	FPS float64
}

// Stream is a live, exclusively-owned camera stream.
//
// Implementations must guarantee:
//   - Frames() never closes until Stop()
//   - Stop() is idempotent and never panics
//   - Stats() is safe from any goroutine
type Stream interface {
	// Frames returns the channel of decoded frames. Frames are delivered
	// non-blocking: if the consumer falls behind, frames are dropped,
	// never queued.
	Frames() <-chan types.Frame

	// Stop releases the device and associated resources. Safe to call
	// multiple times; release failures are logged, not returned.
	Stop() error

	// Stats returns current stream statistics
	Stats() types.StreamStats
}

// Acquirer acquires a camera stream. Failure returns an *AcquireError; the
// caller may retry after addressing the reported kind.
type Acquirer interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// ParseResolution converts a resolution name to width/height.
func ParseResolution(res string) (width, height int) {
	switch res {
	case "480p":
		return 640, 480
	case "720p":
		return 1280, 720
	case "1080p":
		return 1920, 1080
	default:
		return 1280, 720
	}
}
