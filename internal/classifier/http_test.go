package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/drowsyguard/backend/internal/models"
)

func TestClassifyNormalizesLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Image == "" {
			t.Error("request missing image payload")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{"class": "Drowsiness", "confidence": 0.91, "bbox": []float64{10, 20, 110, 140}},
				{"class": "normal", "confidence": 0.85, "bbox": []float64{200, 20, 300, 140}},
				{"class": "yawn", "confidence": 0.3, "bbox": []float64{0, 0, 50, 50}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	got, err := c.Classify(context.Background(), []byte{0xFF, 0xD8}, 0.5)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	// The 0.3-confidence detection falls below the floor.
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Class != models.ClassDrowsy {
		t.Errorf("expected %q, got %q", models.ClassDrowsy, got[0].Class)
	}
	if got[1].Class != models.ClassAwake {
		t.Errorf("expected %q, got %q", models.ClassAwake, got[1].Class)
	}
	if got[0].Box.X2 != 110 {
		t.Errorf("unexpected box: %+v", got[0].Box)
	}
}

func TestClassifyServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	if _, err := c.Classify(context.Background(), []byte{0x00}, 0.5); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
}

func TestNormalizeClass(t *testing.T) {
	cases := map[string]string{
		"Drowsiness": models.ClassDrowsy,
		"drowsy":     models.ClassDrowsy,
		"Normal":     models.ClassAwake,
		"alert":      models.ClassAwake,
		"Yawning":    models.ClassYawn,
		"unknown":    models.ClassAwake,
	}
	for in, want := range cases {
		if got := NormalizeClass(in); got != want {
			t.Errorf("NormalizeClass(%q) = %q, want %q", in, got, want)
		}
	}
}
