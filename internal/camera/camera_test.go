package camera

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyHeuristics(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorKind
	}{
		{"v4l2src: Permission denied opening /dev/video0", KindPermission},
		{"operation not permitted", KindPermission},
		{"Cannot identify device '/dev/video9'", KindNotFound},
		{"no such file or directory", KindNotFound},
		{"Device or resource busy", KindBusy},
		{"resource temporarily unavailable", KindBusy},
		{"internal data stream error", KindOther},
	}
	for _, tc := range cases {
		if got := Classify(errors.New(tc.msg)); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
	if Classify(nil) != KindOther {
		t.Errorf("nil error should classify as other")
	}
}

func TestKindOfUnwrapsChain(t *testing.T) {
	inner := &AcquireError{Kind: KindBusy, Device: "/dev/video0", Err: errors.New("busy")}
	wrapped := fmt.Errorf("session arm: %w", inner)

	if KindOf(wrapped) != KindBusy {
		t.Errorf("expected busy kind through the wrap, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindOther {
		t.Errorf("non-acquire errors classify as other")
	}
}

func TestParseResolution(t *testing.T) {
	cases := map[string][2]int{
		"480p":    {640, 480},
		"720p":    {1280, 720},
		"1080p":   {1920, 1080},
		"unknown": {1280, 720},
	}
	for res, want := range cases {
		w, h := ParseResolution(res)
		if w != want[0] || h != want[1] {
			t.Errorf("ParseResolution(%q) = %dx%d, want %dx%d", res, w, h, want[0], want[1])
		}
	}
}

func TestMockAcquirerDeliversFrames(t *testing.T) {
	a := &MockAcquirer{}
	stream, err := a.Acquire(context.Background(), Constraints{Width: 4, Height: 4, FPS: 100})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Stop()

	select {
	case f := <-stream.Frames():
		if f.Width != 4 || f.Height != 4 {
			t.Errorf("frame geometry mismatch: %dx%d", f.Width, f.Height)
		}
		if len(f.Data) != 4*4*3 {
			t.Errorf("expected raw RGB payload, got %d bytes", len(f.Data))
		}
		if f.TraceID == "" {
			t.Errorf("frames must carry a trace id")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
	}
}

func TestMockAcquirerTypedFailure(t *testing.T) {
	kind := KindPermission
	a := &MockAcquirer{FailKind: &kind}

	_, err := a.Acquire(context.Background(), Constraints{Device: "/dev/video0"})
	if err == nil {
		t.Fatal("expected failure")
	}
	var ae *AcquireError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AcquireError, got %T", err)
	}
	if ae.Kind != KindPermission || ae.Device != "/dev/video0" {
		t.Errorf("kind/device mismatch: %+v", ae)
	}
}

func TestMockStreamStopIdempotent(t *testing.T) {
	a := &MockAcquirer{}
	stream, err := a.Acquire(context.Background(), Constraints{Width: 2, Height: 2, FPS: 50})
	if err != nil {
		t.Fatal(err)
	}

	if err := stream.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := stream.Stop(); err != nil {
		t.Errorf("second stop must be a no-op, got %v", err)
	}
	if stream.Stats().IsConnected {
		t.Errorf("stopped stream should report disconnected")
	}
}
