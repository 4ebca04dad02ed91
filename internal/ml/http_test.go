package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rohitpai/labelforge/internal/config"
)

// --- helpers ---

func modelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func newTestBackend(baseURL string, dims int) *HTTPBackend {
	return NewHTTPBackend(config.MLConfig{
		Backend:       "http",
		BaseURL:       baseURL,
		EmbeddingDims: dims,
	})
}

// --- Embed tests ---

func TestEmbed_ValidResponse(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["image_path"] != "/data/img-001.jpg" {
			t.Errorf("unexpected image_path: %s", body["image_path"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"vector": []float32{0.1, 0.2, 0.3, 0.4},
		})
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	vec, err := b.Embed(context.Background(), "/data/img-001.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dims, got %d", len(vec))
	}
	if vec[2] != 0.3 {
		t.Errorf("unexpected component: %f", vec[2])
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"vector": []float32{0.1, 0.2}})
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	_, err := b.Embed(context.Background(), "/data/img.jpg")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	_, err := b.Embed(context.Background(), "/data/img.jpg")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestEmbed_ConnectionRefused(t *testing.T) {
	ts := modelServer(t, func(_ http.ResponseWriter, _ *http.Request) {})
	ts.Close() // nothing listening anymore

	b := newTestBackend(ts.URL, 4)
	_, err := b.Embed(context.Background(), "/data/img.jpg")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestEmbed_DeadlineExceeded(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := newTestBackend(ts.URL, 4)
	_, err := b.Embed(ctx, "/data/img.jpg")
	if !errors.Is(err, ErrInferenceTimeout) {
		t.Errorf("expected ErrInferenceTimeout, got %v", err)
	}
}

// --- Train tests ---

func TestTrain_StreamsEpochs(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/train" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var body struct {
			Manifest DatasetManifest `json:"manifest"`
			Config   TrainConfig     `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body.Config.Epochs != 3 {
			t.Errorf("unexpected epochs: %d", body.Config.Epochs)
		}
		if len(body.Manifest.Classes) != 2 {
			t.Errorf("unexpected classes: %v", body.Manifest.Classes)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for epoch := 1; epoch <= 3; epoch++ {
			fmt.Fprintf(w, `{"epoch":%d,"box_loss":%f,"map50":%f}`+"\n",
				epoch, 1.0/float64(epoch), 0.2*float64(epoch))
		}
		fmt.Fprintln(w, `{"done":true,"model_ref":"models/run-7/best.pt"}`)
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)

	var epochs []EpochMetrics
	modelRef, final, err := b.Train(context.Background(),
		DatasetManifest{ProjectID: "p1", Classes: []string{"car", "person"}},
		TrainConfig{Epochs: 3, BatchSize: 16},
		func(m EpochMetrics) { epochs = append(epochs, m) },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if modelRef != "models/run-7/best.pt" {
		t.Errorf("unexpected model ref: %s", modelRef)
	}
	if len(epochs) != 3 {
		t.Fatalf("expected 3 epoch callbacks, got %d", len(epochs))
	}
	for i, m := range epochs {
		if m.Epoch != i+1 {
			t.Errorf("epoch %d out of order: %d", i+1, m.Epoch)
		}
	}
	if final.Epoch != 3 {
		t.Errorf("expected final epoch 3, got %d", final.Epoch)
	}
}

func TestTrain_CancelBetweenEpochs(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		for epoch := 1; epoch <= 5; epoch++ {
			fmt.Fprintf(w, `{"epoch":%d}`+"\n", epoch)
		}
		fmt.Fprintln(w, `{"done":true,"model_ref":"models/run-8/best.pt"}`)
	})
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := newTestBackend(ts.URL, 4)
	var seen int
	_, final, err := b.Train(ctx, DatasetManifest{}, TrainConfig{Epochs: 5},
		func(EpochMetrics) {
			seen++
			if seen == 2 {
				cancel()
			}
		},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if seen != 2 {
		t.Errorf("expected 2 epoch callbacks before cancel, got %d", seen)
	}
	if final.Epoch != 2 {
		t.Errorf("expected final epoch 2, got %d", final.Epoch)
	}
}

func TestTrain_StreamEndsWithoutModelRef(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"epoch":1}`)
		fmt.Fprintln(w, `{"epoch":2}`)
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	_, _, err := b.Train(context.Background(), DatasetManifest{}, TrainConfig{Epochs: 2}, nil)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestTrain_MalformedStreamLine(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"epoch":1}`)
		fmt.Fprintln(w, `not json at all`)
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	_, _, err := b.Train(context.Background(), DatasetManifest{}, TrainConfig{Epochs: 2}, nil)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestTrain_ServerError(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	_, _, err := b.Train(context.Background(), DatasetManifest{}, TrainConfig{Epochs: 1}, nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

// --- Detect tests ---

func TestDetect_ValidResponse(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detect" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["model_ref"] != "models/run-7/best.pt" {
			t.Errorf("unexpected model_ref: %v", body["model_ref"])
		}
		if body["confidence_threshold"] != 0.25 {
			t.Errorf("unexpected threshold: %v", body["confidence_threshold"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{
					"class_index": 1,
					"bbox":        map[string]float64{"x": 0.5, "y": 0.5, "w": 0.2, "h": 0.3},
					"confidence":  0.87,
				},
			},
		})
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	dets, err := b.Detect(context.Background(), "models/run-7/best.pt", "/data/img.jpg", 0.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].ClassIndex != 1 {
		t.Errorf("unexpected class index: %d", dets[0].ClassIndex)
	}
	if dets[0].BBox.W != 0.2 {
		t.Errorf("unexpected bbox width: %f", dets[0].BBox.W)
	}
	if dets[0].Confidence != 0.87 {
		t.Errorf("unexpected confidence: %f", dets[0].Confidence)
	}
}

func TestDetect_EmptyDetections(t *testing.T) {
	ts := modelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"detections": []any{}})
	})
	defer ts.Close()

	b := newTestBackend(ts.URL, 4)
	dets, err := b.Detect(context.Background(), "ref", "/data/img.jpg", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}
