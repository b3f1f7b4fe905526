package face

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", logger.Discard())
	c.encode = func(models.Frame, int) ([]byte, error) {
		return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
	}
	return c
}

func TestLocate_ParsesFaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/locate" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected multipart file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if len(data) != 4 {
				t.Errorf("Expected 4 image bytes, got %d", len(data))
			}
		}
		w.Write([]byte(`{"faces":[
			{"location":[10,60,70,20],"encoding":[0.1,0.2,0.3]},
			{"location":[1,2],"encoding":[0.5]}
		]}`))
	})

	faces, err := c.Locate(context.Background(), models.Frame{})
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("Expected 1 valid face, got %d", len(faces))
	}

	expected := models.BBox{X1: 20, Y1: 10, X2: 60, Y2: 70}
	if faces[0].Region != expected {
		t.Errorf("Expected region %+v, got %+v", expected, faces[0].Region)
	}
	if len(faces[0].Encoding) != 3 {
		t.Errorf("Expected 3-d encoding, got %d", len(faces[0].Encoding))
	}
}

func TestLocate_ServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	if _, err := c.Locate(context.Background(), models.Frame{}); err == nil {
		t.Error("Expected error for a failing service")
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"healthy", http.StatusOK, `{"status":"healthy","model_loaded":true}`, false},
		{"model missing", http.StatusOK, `{"status":"healthy","model_loaded":false}`, true},
		{"down", http.StatusServiceUnavailable, `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := c.CheckHealth(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrServiceUnavailable) {
				t.Errorf("Expected ErrServiceUnavailable, got %v", err)
			}
		})
	}
}

func TestCheckHealth_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", logger.Discard())

	if err := c.CheckHealth(context.Background()); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestMatches(t *testing.T) {
	c := NewClient("http://unused", logger.Discard())
	ref := []float64{0, 0, 0}

	tests := []struct {
		name      string
		candidate []float64
		expected  bool
	}{
		{"identical", []float64{0, 0, 0}, true},
		{"within tolerance", []float64{0.3, 0.4, 0}, true},
		{"at tolerance", []float64{0.6, 0, 0}, true},
		{"too far", []float64{0.5, 0.5, 0}, false},
		{"length mismatch", []float64{0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Matches(tt.candidate, ref, DefaultTolerance); got != tt.expected {
				t.Errorf("Matches() = %v, expected %v", got, tt.expected)
			}
		})
	}

	if !math.IsInf(Distance(nil, nil), 1) {
		t.Error("Distance of empty vectors should be +Inf")
	}
}
