package handlers

import (
	"net/http"

	"occupancy/internal/config"
	"occupancy/internal/logger"
	"occupancy/internal/models"
	"occupancy/internal/repository"
)

const maxEventsLimit = 500

func StatsHandler(src StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, src.GetStats())
	}
}

// HealthHandler answers 200 while the camera delivers frames, 503 otherwise.
func HealthHandler(src StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := src.GetStats()

		status, code := "healthy", http.StatusOK
		if !src.IsCameraHealthy() {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		writeJSON(w, code, map[string]interface{}{
			"status":           status,
			"is_running":       stats.IsRunning,
			"frames_processed": stats.FramesProcessed,
			"camera":           stats.CameraStats,
		})
	}
}

// EventsHandler lists recent camera events, newest first.
func EventsHandler(repo repository.CameraEventRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), 50)
		if limit > maxEventsLimit {
			limit = maxEventsLimit
		}
		camera := q.Get("camera")
		if camera == "" {
			camera = cfg.CameraID
		}

		events, err := repo.ListRecent(r.Context(), camera, limit)
		if err != nil {
			logger.Error("Failed to list events: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list events")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"camera_id": camera,
			"count":     len(events),
			"events":    events,
		})
	}
}

// LatestMetricsHandler returns the newest snapshot for ?camera (default: the
// local camera). With a store it can answer for any camera publishing to it;
// without one only the local pipeline is known.
func LatestMetricsHandler(store LatestStore, local MetricsSource, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		camera := r.URL.Query().Get("camera")
		if camera == "" {
			camera = cfg.CameraID
		}

		if store != nil {
			rec, err := store.Latest(r.Context(), camera)
			if err != nil {
				logger.Error("Failed to read latest metrics: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to read latest metrics")
				return
			}
			if rec == nil {
				writeError(w, http.StatusNotFound, "no metrics for camera")
				return
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}

		var m *models.Metrics
		if camera == cfg.CameraID {
			m = local.GetLatestMetrics()
		}
		if m == nil {
			writeError(w, http.StatusNotFound, "no metrics for camera")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// ReloadEmployeesHandler refreshes the in-memory employee embeddings.
func ReloadEmployeesHandler(p DirectoryReloader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}

		if err := p.ReloadEmployeeDirectory(r.Context()); err != nil {
			logger.Error("Employee reload failed: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to reload employees")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":           "reloaded",
			"employees_loaded": p.GetStats().EmployeesLoaded,
		})
	}
}
