package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drowsyguard/backend/internal/models"
)

// HTTPClient calls the external drowsiness model service over HTTP. The
// service accepts a base64-encoded image and returns raw candidate
// detections; class labels are normalized here so the rest of the pipeline
// only sees the canonical names.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a model service client. timeout bounds a single
// classify call end to end.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
}

type detectResponse struct {
	Detections []struct {
		Class      string    `json:"class"`
		Confidence float64   `json:"confidence"`
		Bbox       []float64 `json:"bbox"`
	} `json:"detections"`
}

// Classify sends one image to the model service and returns candidates at or
// above minConfidence.
func (c *HTTPClient) Classify(ctx context.Context, img []byte, minConfidence float64) ([]models.Candidate, error) {
	body, err := json.Marshal(detectRequest{
		Image:      base64.StdEncoding.EncodeToString(img),
		Confidence: minConfidence,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model service: status %d", resp.StatusCode)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("model service: decode response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(out.Detections))
	for _, d := range out.Detections {
		if len(d.Bbox) != 4 || d.Confidence < minConfidence {
			continue
		}
		candidates = append(candidates, models.Candidate{
			Class:      NormalizeClass(d.Class),
			Confidence: d.Confidence,
			Box:        models.Box{X1: d.Bbox[0], Y1: d.Bbox[1], X2: d.Bbox[2], Y2: d.Bbox[3]},
		})
	}
	return candidates, nil
}

// Health probes the model service liveness endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model service: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service: status %d", resp.StatusCode)
	}
	return nil
}

// NormalizeClass maps model label variants to the canonical class names.
func NormalizeClass(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "drowsy", "drowsiness":
		return models.ClassDrowsy
	case "yawn", "yawning":
		return models.ClassYawn
	case "awake", "normal", "alert":
		return models.ClassAwake
	default:
		return models.ClassAwake
	}
}
