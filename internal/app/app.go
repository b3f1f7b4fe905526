package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"occupancy/internal/capture"
	"occupancy/internal/config"
	"occupancy/internal/groups"
	"occupancy/internal/handlers"
	"occupancy/internal/logger"
	"occupancy/internal/pipeline"
	"occupancy/internal/repository/sqlite"
	"occupancy/internal/routes"
	"occupancy/internal/services"
	"occupancy/internal/services/ai"
	"occupancy/internal/services/camera"
	"occupancy/internal/services/face"
	"occupancy/internal/services/storage"
	"occupancy/internal/services/websocket"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the service.
type App struct {
	config *config.Config
	logger *logger.Logger
	runID  string

	db            *sqlite.DB
	events        *sqlite.CameraEventRepository
	employees     *sqlite.EmployeeRepository
	detector      *ai.PersonDetector
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	publisher     *storage.RedisPublisher
	manager       *services.Manager
	pipeline      *pipeline.ProcessingPipeline
}

func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, runID: uuid.NewString()}
	a.logger = log.WithField("run_id", a.runID)

	if err := a.build(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.config

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.db = db
	a.events = sqlite.NewCameraEventRepository(db)
	a.employees = sqlite.NewEmployeeRepository(db)

	detector, err := ai.NewPersonDetector(cfg, a.logger)
	if err != nil {
		return err
	}
	a.detector = detector

	a.bufferService = storage.NewBufferService(a.events, cfg.EventBufferLimit, a.logger)
	a.hubService = websocket.NewHubService(a.logger)

	if cfg.RedisAddr != "" {
		publisher, err := storage.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, a.logger)
		if err != nil {
			a.logger.Warning("Redis publishing disabled: %v", err)
		} else {
			a.publisher = publisher
		}
	}

	a.manager = services.NewManager(a.bufferService, a.hubService, a.publisher, cfg, a.logger)

	cam := capture.NewCameraCapture(capture.Options{
		URL:              cfg.CameraURL,
		TargetFPS:        cfg.TargetFPS,
		ReconnectTimeout: cfg.ReconnectTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		QueueSize:        cfg.FrameQueueSize,
	}, camera.Opener(cfg.CameraURL), a.logger)

	deps := pipeline.Deps{
		Camera:    cam,
		Detector:  a.detector,
		Groups:    groups.NewDetector(cfg.GroupMaxDistance, cfg.GroupMinSize),
		Directory: a.employees,
		Sink:      a.manager,
		Annotator: ai.NewAnnotator(cfg.JPEGQuality),
	}
	if faces := a.resolveFaceMatcher(); faces != nil {
		deps.Faces = faces
	}

	a.pipeline = pipeline.New(pipeline.Options{
		CameraID:      cfg.CameraID,
		FaceTolerance: cfg.FaceTolerance,
	}, deps, a.logger)
	return nil
}

// resolveFaceMatcher checks the face service once. Recognition stays off for
// the whole run when it is disabled or unreachable.
func (a *App) resolveFaceMatcher() *face.Client {
	if !a.config.FaceRecognitionEnabled {
		a.logger.Info("Face recognition disabled by configuration")
		return nil
	}

	client := face.NewClient(a.config.FaceServiceURL, a.logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.CheckHealth(ctx); err != nil {
		a.logger.Warning("Face recognition unavailable, continuing without employee distinction: %v", err)
		return nil
	}

	a.logger.Info("Face recognition enabled via %s", a.config.FaceServiceURL)
	return client
}

// Run serves HTTP and processes the camera until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		a.bufferService.Run(bgCtx, a.config.FlushInterval)
	}()
	go func() {
		defer bg.Done()
		a.hubService.Run(bgCtx)
	}()

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()
	starter := make(chan struct{})
	go func() {
		defer close(starter)
		a.startPipeline(startCtx)
	}()

	var latest handlers.LatestStore
	if a.publisher != nil {
		latest = a.publisher
	}
	router := routes.SetupRoutes(a.pipeline, a.manager, a.events, latest, a.config, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Occupancy Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📹 Camera: %s (%s)\n", capture.SanitizeURL(a.config.CameraURL), a.config.CameraID)
	fmt.Printf("🤖 AI Model: %s\n", a.config.ModelPath)
	fmt.Printf("🗄️  Database: %s\n", a.config.DatabasePath)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown: %v", err)
	}

	cancelStart()
	<-starter
	a.pipeline.Stop()
	a.manager.Stop()
	stopBackground()
	bg.Wait()

	a.close()
	return runErr
}

// startPipeline keeps trying to bring the camera up until it succeeds or ctx ends.
func (a *App) startPipeline(ctx context.Context) {
	for ctx.Err() == nil {
		err := a.pipeline.Start(ctx)
		if err == nil {
			return
		}
		a.logger.Error("Pipeline start failed, retrying in %v: %v", a.config.ReconnectTimeout, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.config.ReconnectTimeout):
		}
	}
}

func (a *App) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
	}
	if a.logger != nil {
		a.logger.Close()
	}
}
