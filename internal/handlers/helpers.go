package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"occupancy/internal/models"
	"occupancy/internal/pipeline"
)

type FrameSource interface {
	GetLatestFrame() []byte
}

type StatsSource interface {
	GetStats() pipeline.Stats
	IsCameraHealthy() bool
}

type MetricsSource interface {
	GetLatestMetrics() *models.Metrics
}

// LatestStore holds the newest record of every camera publishing metrics.
type LatestStore interface {
	Latest(ctx context.Context, cameraID string) (*models.MetricsRecord, error)
}

type DirectoryReloader interface {
	ReloadEmployeeDirectory(ctx context.Context) error
	GetStats() pipeline.Stats
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}
