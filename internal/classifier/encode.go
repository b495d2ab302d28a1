package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// EncodeJPEG converts a raw RGB frame to a JPEG no wider than maxWidth,
// preserving aspect ratio. Upscaling never happens; frames already at or
// below maxWidth are encoded as-is.
func EncodeJPEG(frame types.Frame, maxWidth int) ([]byte, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if want := frame.Width * frame.Height * 3; len(frame.Data) < want {
		return nil, fmt.Errorf("short frame data: have %d bytes, want %d", len(frame.Data), want)
	}

	img := rgbToImage(frame)

	if frame.Width > maxWidth {
		scale := float64(maxWidth) / float64(frame.Width)
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, int(float64(frame.Height)*scale)))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// rgbToImage expands interleaved RGB bytes into an RGBA image.
func rgbToImage(frame types.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	n := frame.Width * frame.Height
	for i := 0; i < n; i++ {
		img.Pix[i*4+0] = frame.Data[i*3+0]
		img.Pix[i*4+1] = frame.Data[i*3+1]
		img.Pix[i*4+2] = frame.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img
}
