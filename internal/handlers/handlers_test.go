package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"occupancy/internal/capture"
	"occupancy/internal/config"
	"occupancy/internal/logger"
	"occupancy/internal/models"
	"occupancy/internal/pipeline"
)

type fakePipeline struct {
	frame     []byte
	healthy   bool
	stats     pipeline.Stats
	latest    *models.Metrics
	reloadErr error
	reloads   int
}

func (p *fakePipeline) GetLatestMetrics() *models.Metrics { return p.latest }

func (p *fakePipeline) GetLatestFrame() []byte { return p.frame }

func (p *fakePipeline) GetStats() pipeline.Stats { return p.stats }

func (p *fakePipeline) IsCameraHealthy() bool { return p.healthy }

func (p *fakePipeline) ReloadEmployeeDirectory(ctx context.Context) error {
	p.reloads++
	if p.reloadErr == nil {
		p.stats.EmployeesLoaded = 2
	}
	return p.reloadErr
}

type fakeEvents struct {
	events []models.CameraEvent
	err    error
	camera string
	limit  int
}

func (r *fakeEvents) Insert(ctx context.Context, event *models.CameraEvent) error { return nil }

func (r *fakeEvents) InsertBatch(ctx context.Context, events []models.CameraEvent) error { return nil }

func (r *fakeEvents) ListRecent(ctx context.Context, cameraID string, limit int) ([]models.CameraEvent, error) {
	r.camera, r.limit = cameraID, limit
	return r.events, r.err
}

func (r *fakeEvents) CountSince(ctx context.Context, cameraID string, since time.Time) (int, error) {
	return 0, nil
}

// ========================================
// Frame Endpoint Tests
// ========================================

func TestSnapshotHandler(t *testing.T) {
	p := &fakePipeline{}
	handler := SnapshotHandler(p)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before first frame, got %d", rec.Code)
	}

	p.frame = []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.Len() != 5 {
		t.Errorf("Expected 5 bytes, got %d", rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestStreamHandler_ServesMultipartFrames(t *testing.T) {
	p := &fakePipeline{frame: []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}}
	srv := httptest.NewServer(StreamHandler(p, 50, logger.Discard()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	parts := 0
	deadline := time.Now().Add(2 * time.Second)
	for parts < 2 && time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if strings.TrimSpace(line) == "--frame" {
			parts++
		}
	}
	if parts < 2 {
		t.Errorf("Expected the latest frame to be re-served, got %d parts", parts)
	}
}

// ========================================
// Status Endpoint Tests
// ========================================

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		healthy  bool
		expected int
		status   string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"unhealthy", false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{healthy: tt.healthy, stats: pipeline.Stats{CameraStats: capture.Stats{IsConnected: tt.healthy}}}

			rec := httptest.NewRecorder()
			HealthHandler(p)(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if body["status"] != tt.status {
				t.Errorf("Expected status %q, got %v", tt.status, body["status"])
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	p := &fakePipeline{stats: pipeline.Stats{
		FramesProcessed:     12,
		AvgProcessingTimeMs: 35.5,
		LastMetrics:         &models.Metrics{TotalPeople: 3},
	}}

	rec := httptest.NewRecorder()
	StatsHandler(p)(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	var stats pipeline.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if stats.FramesProcessed != 12 || stats.LastMetrics == nil || stats.LastMetrics.TotalPeople != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestEventsHandler(t *testing.T) {
	cfg := &config.Config{CameraID: "camera1"}
	repo := &fakeEvents{events: []models.CameraEvent{{ID: "a", CameraID: "camera1", TotalPeople: 2}}}
	handler := EventsHandler(repo, cfg, logger.Discard())

	tests := []struct {
		query  string
		camera string
		limit  int
	}{
		{"", "camera1", 50},
		{"?limit=5&camera=entrance", "entrance", 5},
		{"?limit=100000", "camera1", maxEventsLimit},
		{"?limit=abc", "camera1", 50},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/api/events"+tt.query, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tt.query, rec.Code)
		}
		if repo.camera != tt.camera || repo.limit != tt.limit {
			t.Errorf("%q: expected camera %s limit %d, got %s %d", tt.query, tt.camera, tt.limit, repo.camera, repo.limit)
		}
	}

	repo.err = errors.New("database is locked")
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

type fakeLatestStore struct {
	records map[string]*models.MetricsRecord
	err     error
}

func (s *fakeLatestStore) Latest(ctx context.Context, cameraID string) (*models.MetricsRecord, error) {
	return s.records[cameraID], s.err
}

func TestLatestMetricsHandler_FromStore(t *testing.T) {
	cfg := &config.Config{CameraID: "camera1"}
	store := &fakeLatestStore{records: map[string]*models.MetricsRecord{
		"entrance": {Metrics: models.Metrics{CameraID: "entrance", TotalPeople: 5}, ProcessingTimeMs: 12},
	}}
	handler := LatestMetricsHandler(store, &fakePipeline{}, cfg, logger.Discard())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest?camera=entrance", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got models.MetricsRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.CameraID != "entrance" || got.TotalPeople != 5 || got.ProcessingTimeMs != 12 {
		t.Errorf("Unexpected record %+v", got)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a camera without metrics, got %d", rec.Code)
	}

	store.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest?camera=entrance", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestLatestMetricsHandler_LocalFallback(t *testing.T) {
	cfg := &config.Config{CameraID: "camera1"}
	p := &fakePipeline{}
	handler := LatestMetricsHandler(nil, p, cfg, logger.Discard())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before the first frame, got %d", rec.Code)
	}

	p.latest = &models.Metrics{CameraID: "camera1", TotalPeople: 3}
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_people":3`) {
		t.Errorf("Unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/latest?camera=entrance", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a remote camera without a store, got %d", rec.Code)
	}
}

// ========================================
// Operator Endpoint Tests
// ========================================

func TestReloadEmployeesHandler(t *testing.T) {
	p := &fakePipeline{}
	handler := ReloadEmployeesHandler(p, logger.Discard())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/employees/reload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/employees/reload", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"employees_loaded":2`) {
		t.Errorf("Unexpected body %s", rec.Body.String())
	}

	p.reloadErr = errors.New("database is locked")
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/employees/reload", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if p.reloads != 2 {
		t.Errorf("Expected 2 reload calls, got %d", p.reloads)
	}
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	log, err := logger.NewLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer log.Close()

	log.Info("camera connected")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log)(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "camera connected") {
		t.Errorf("Expected log line in body, got %q", body)
	}

	rec = httptest.NewRecorder()
	ClearLogsHandler(log)(rec, httptest.NewRequest(http.MethodPost, "/logs/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	data, err := os.ReadFile(filepath.Join(dir, logger.LogFileName))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "camera connected") {
		t.Error("Log file should have been truncated")
	}
}
