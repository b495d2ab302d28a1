package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// HTTPConfig configures the remote classifier client.
type HTTPConfig struct {
	// URL is the classifier service base URL
	URL string
	// Timeout bounds one Detect invocation end to end
	Timeout time.Duration
	// MaxWidth is the width frames are downscaled to before upload
	MaxWidth int
}

// HTTP is a Classifier backed by a remote expression-detection service.
//
// The frame is downscaled and JPEG-encoded client side (a 720p RGB frame
// is ~2.6 MB raw; the scaled JPEG is a few KB), POSTed to /detect, and the
// reply's seven scores are mapped onto an EmotionVector.
type HTTP struct {
	cfg HTTPConfig
	c   *http.Client
}

// NewHTTP creates a remote classifier client.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 400 * time.Millisecond
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 320
	}
	return &HTTP{cfg: cfg, c: &http.Client{Timeout: cfg.Timeout}}
}

type detectResp struct {
	FaceFound   bool                `json:"face_found"`
	Expressions types.EmotionVector `json:"expressions"`
}

// Detect implements Classifier. All failure modes collapse to "no face":
// the sampler does not distinguish a missed face from a missed service.
func (h *HTTP) Detect(ctx context.Context, frame types.Frame) (types.EmotionVector, bool) {
	jpeg, err := EncodeJPEG(frame, h.cfg.MaxWidth)
	if err != nil {
		slog.Warn("classifier: frame encode failed", "error", err, "trace_id", frame.TraceID)
		return types.EmotionVector{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL+"/detect", bytes.NewReader(jpeg))
	if err != nil {
		return types.EmotionVector{}, false
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := h.c.Do(req)
	if err != nil {
		slog.Debug("classifier: request failed", "error", err)
		return types.EmotionVector{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Debug("classifier: non-200 reply", "status", resp.Status, "body", string(body))
		return types.EmotionVector{}, false
	}

	var out detectResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("classifier: decode failed", "error", fmt.Errorf("detect decode: %w", err))
		return types.EmotionVector{}, false
	}
	if !out.FaceFound {
		return types.EmotionVector{}, false
	}
	return out.Expressions, true
}
