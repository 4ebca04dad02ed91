package ml

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rohitpai/labelforge/internal/config"
)

// HTTPBackend speaks to a model server over its REST API. One server
// provides all three capabilities.
type HTTPBackend struct {
	baseURL string
	dims    int
	client  *http.Client
}

// NewHTTPBackend creates a backend for the configured model server.
func NewHTTPBackend(cfg config.MLConfig) *HTTPBackend {
	return &HTTPBackend{
		baseURL: cfg.BaseURL,
		dims:    cfg.EmbeddingDims,
		// No client-level timeout: training streams for a long time and is
		// bounded by ctx instead.
		client: &http.Client{},
	}
}

func (b *HTTPBackend) Name() string { return "http" }

func (b *HTTPBackend) Dimensions() int { return b.dims }

func (b *HTTPBackend) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	body := map[string]string{"image_path": imagePath}

	var out struct {
		Vector []float32 `json:"vector"`
	}
	if err := b.postJSON(ctx, "/v1/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Vector) != b.dims {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidResponse, b.dims, len(out.Vector))
	}
	return out.Vector, nil
}

// Train streams NDJSON from the model server: one metrics object per epoch,
// then a final object carrying the model artifact reference.
func (b *HTTPBackend) Train(ctx context.Context, manifest DatasetManifest, cfg TrainConfig, onEpoch func(EpochMetrics)) (string, EpochMetrics, error) {
	payload, err := json.Marshal(map[string]any{
		"manifest": manifest,
		"config":   cfg,
	})
	if err != nil {
		return "", EpochMetrics{}, fmt.Errorf("encoding train request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/train", bytes.NewReader(payload))
	if err != nil {
		return "", EpochMetrics{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", EpochMetrics{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", EpochMetrics{}, fmt.Errorf("%w: train returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var final EpochMetrics
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg struct {
			EpochMetrics
			Done     bool   `json:"done"`
			ModelRef string `json:"model_ref"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			return "", EpochMetrics{}, fmt.Errorf("%w: decoding train stream: %v", ErrInvalidResponse, err)
		}
		if msg.Done {
			return msg.ModelRef, final, nil
		}

		final = msg.EpochMetrics
		if onEpoch != nil {
			onEpoch(msg.EpochMetrics)
		}
		if ctx.Err() != nil {
			return "", final, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", final, ctx.Err()
		}
		return "", final, fmt.Errorf("reading train stream: %w", err)
	}
	return "", final, fmt.Errorf("%w: train stream ended without a model reference", ErrInvalidResponse)
}

func (b *HTTPBackend) Detect(ctx context.Context, modelRef, imagePath string, confidence float64) ([]Detection, error) {
	body := map[string]any{
		"model_ref":            modelRef,
		"image_path":           imagePath,
		"confidence_threshold": confidence,
	}

	var out struct {
		Detections []Detection `json:"detections"`
	}
	if err := b.postJSON(ctx, "/v1/detect", body, &out); err != nil {
		return nil, err
	}
	return out.Detections, nil
}

func (b *HTTPBackend) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrBackendUnavailable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrInvalidResponse, path, err)
	}
	return nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

var _ Backend = (*HTTPBackend)(nil)
