package classifier

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

func rgbFrame(w, h int) types.Frame {
	return types.Frame{Width: w, Height: h, Data: make([]byte, w*h*3)}
}

func TestEncodeJPEGDownscales(t *testing.T) {
	out, err := EncodeJPEG(rgbFrame(1280, 720), 320)
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable jpeg: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 320 {
		t.Errorf("expected width 320, got %d", b.Dx())
	}
	if b.Dy() != 180 {
		t.Errorf("aspect ratio lost: expected height 180, got %d", b.Dy())
	}
}

func TestEncodeJPEGNoUpscale(t *testing.T) {
	out, err := EncodeJPEG(rgbFrame(160, 120), 320)
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 160 {
		t.Errorf("small frames must pass through unscaled, got width %d", img.Bounds().Dx())
	}
}

func TestEncodeJPEGRejectsBadFrames(t *testing.T) {
	if _, err := EncodeJPEG(types.Frame{Width: 0, Height: 10}, 320); err == nil {
		t.Error("zero width must be rejected")
	}
	if _, err := EncodeJPEG(types.Frame{Width: 4, Height: 4, Data: make([]byte, 10)}, 320); err == nil {
		t.Error("short data must be rejected")
	}
}
