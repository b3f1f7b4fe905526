package routes

import (
	"net/http"

	"occupancy/internal/config"
	"occupancy/internal/handlers"
	"occupancy/internal/logger"
	"occupancy/internal/middleware"
	"occupancy/internal/pipeline"
	"occupancy/internal/repository"
	"occupancy/internal/services"
)

// SetupRoutes registers the API, stream and log endpoints. Mutating
// endpoints are wrapped with the token middleware. latest may be nil.
func SetupRoutes(p *pipeline.ProcessingPipeline, manager *services.Manager, events repository.CameraEventRepository, latest handlers.LatestStore, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	protected := middleware.TokenMiddleware(cfg.APIToken)

	// Live output
	mux.HandleFunc("/api/stream", handlers.StreamHandler(p, cfg.StreamFPS, logger))
	mux.HandleFunc("/api/snapshot", handlers.SnapshotHandler(p))
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(manager.GetWebsocketService(), logger))

	// Status and history
	mux.HandleFunc("/api/stats", handlers.StatsHandler(p))
	mux.HandleFunc("/api/health", handlers.HealthHandler(p))
	mux.HandleFunc("/api/events", handlers.EventsHandler(events, cfg, logger))
	mux.HandleFunc("/api/metrics/latest", handlers.LatestMetricsHandler(latest, p, cfg, logger))

	// Operator actions
	mux.Handle("/api/employees/reload", protected(handlers.ReloadEmployeesHandler(p, logger)))

	// Log endpoints
	mux.Handle("/logs", protected(handlers.ShowLogsHandler(logger)))
	mux.Handle("/logs/clear", protected(handlers.ClearLogsHandler(logger)))

	return mux
}
