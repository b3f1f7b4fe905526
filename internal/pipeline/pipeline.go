// Package pipeline turns captured frames into occupancy metrics and an
// annotated preview frame, one frame at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"occupancy/internal/capture"
	"occupancy/internal/groups"
	"occupancy/internal/logger"
	"occupancy/internal/models"
)

var ErrCameraConnect = errors.New("pipeline: camera connection failed")

const (
	defaultCameraID  = "camera1"
	defaultTolerance = 0.6
	progressEvery    = 100
	persistTimeout   = 10 * time.Second
)

type Options struct {
	CameraID      string
	FaceTolerance float64

	PollTimeout  time.Duration
	IdleBackoff  time.Duration
	ErrorBackoff time.Duration
	StopTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.CameraID == "" {
		o.CameraID = defaultCameraID
	}
	if o.FaceTolerance <= 0 {
		o.FaceTolerance = defaultTolerance
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.IdleBackoff <= 0 {
		o.IdleBackoff = 100 * time.Millisecond
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	return o
}

// Deps are the collaborators of a pipeline. Faces is nil when face
// recognition is disabled or unavailable for this process.
type Deps struct {
	Camera    Camera
	Detector  PersonDetector
	Groups    *groups.Detector
	Faces     FaceMatcher
	Directory EmployeeDirectory
	Sink      MetricsSink
	Annotator Annotator
}

type Stats struct {
	FramesProcessed     int64           `json:"frames_processed"`
	AvgProcessingTimeMs float64         `json:"avg_processing_time_ms"`
	LastError           string          `json:"last_error,omitempty"`
	CameraHealthy       bool            `json:"camera_healthy"`
	CameraStats         capture.Stats   `json:"camera_stats"`
	LastMetrics         *models.Metrics `json:"last_metrics,omitempty"`
	IsRunning           bool            `json:"is_running"`
	FaceRecognition     bool            `json:"face_recognition"`
	EmployeesLoaded     int             `json:"employees_loaded"`
}

type ProcessingPipeline struct {
	opts Options
	deps Deps
	log  *logger.Logger
	now  func() time.Time

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	employees     atomic.Pointer[[]models.Employee]
	latestFrame   atomic.Pointer[[]byte]
	latestMetrics atomic.Pointer[models.Metrics]

	statsMu         sync.RWMutex
	framesProcessed int64
	avgMs           float64
	lastError       string

	persistWG sync.WaitGroup
}

func New(opts Options, deps Deps, log *logger.Logger) *ProcessingPipeline {
	if deps.Groups == nil {
		deps.Groups = groups.NewDetector(0, 0)
	}
	p := &ProcessingPipeline{
		opts: opts.withDefaults(),
		deps: deps,
		log:  log.WithField("component", "pipeline"),
		now:  time.Now,
	}
	empty := []models.Employee{}
	p.employees.Store(&empty)
	return p
}

// Start connects the camera and launches the processing loop. It is a no-op
// while already running. A loop left behind by a timed-out Stop is awaited
// first, bounded by ctx.
func (p *ProcessingPipeline) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.cancel != nil {
		p.log.Warning("Pipeline already running")
		return nil
	}

	// A loop that outlived the last Stop must exit before a new one starts.
	if p.done != nil {
		select {
		case <-p.done:
			p.done = nil
		case <-ctx.Done():
			return fmt.Errorf("previous processing loop still running: %w", ctx.Err())
		}
	}

	if p.deps.Faces != nil && p.deps.Directory != nil {
		if err := p.ReloadEmployeeDirectory(ctx); err != nil {
			p.log.Error("Failed to load employee directory: %v", err)
		}
	}

	if err := p.deps.Camera.Connect(ctx); err != nil {
		p.log.Error("Failed to connect to camera: %v", err)
		return fmt.Errorf("%w: %v", ErrCameraConnect, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.run(loopCtx, p.done)

	p.log.Info("Pipeline started for camera %s", p.opts.CameraID)
	return nil
}

// Stop lets the in-flight frame finish, waits a bounded time for the loop and
// pending persists, then disconnects the camera.
func (p *ProcessingPipeline) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.cancel == nil {
		return
	}

	p.log.Info("Stopping pipeline")
	p.cancel()
	p.cancel = nil
	select {
	case <-p.done:
		p.done = nil
	case <-time.After(p.opts.StopTimeout):
		p.log.Warning("Processing loop did not stop within %v", p.opts.StopTimeout)
	}
	p.running.Store(false)

	persisted := make(chan struct{})
	go func() {
		p.persistWG.Wait()
		close(persisted)
	}()
	select {
	case <-persisted:
	case <-time.After(p.opts.StopTimeout):
		p.log.Warning("Pending metrics persists abandoned")
	}

	p.deps.Camera.Disconnect()
	p.log.Info("Pipeline stopped")
}

func (p *ProcessingPipeline) IsRunning() bool {
	return p.running.Load()
}

func (p *ProcessingPipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.log.Info("Processing loop started")

	// Frames in flight finish even when Stop cancels the loop.
	work := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		frame, ok := p.deps.Camera.GetFrame(p.opts.PollTimeout)
		if !ok {
			sleepContext(ctx, p.opts.IdleBackoff)
			continue
		}

		start := p.now()
		if err := p.processFrame(work, frame, start); err != nil {
			p.log.Error("Error processing frame %d: %v", frame.Seq, err)
			p.setLastError(err)
			sleepContext(ctx, p.opts.ErrorBackoff)
			continue
		}
		p.recordTiming(p.now().Sub(start))
	}

	p.log.Info("Processing loop stopped")
}

func (p *ProcessingPipeline) processFrame(ctx context.Context, frame models.Frame, start time.Time) error {
	boxes, err := p.deps.Detector.Detect(ctx, frame)
	if err != nil {
		return fmt.Errorf("person detection: %w", err)
	}

	detections := make([]models.Detection, len(boxes))
	for i, b := range boxes {
		detections[i] = models.Detection{
			BBox:       b.BBox,
			Confidence: b.Confidence,
			PersonID:   fmt.Sprintf("person_%d", i),
		}
	}

	if err := p.recognizeEmployees(ctx, frame, detections); err != nil {
		return fmt.Errorf("face recognition: %w", err)
	}

	found := p.deps.Groups.DetectGroups(detections)
	metrics := p.deps.Groups.CalculatePotentialCustomers(found, detections)
	metrics.Timestamp = frame.Timestamp
	metrics.CameraID = p.opts.CameraID

	p.persist(ctx, models.MetricsRecord{
		Metrics:          metrics,
		ProcessingTimeMs: durationMs(p.now().Sub(start)),
		FrameWidth:       frame.Width,
		FrameHeight:      frame.Height,
	})

	info := p.deps.Groups.VisualizationInfo(found, detections)
	encoded, err := p.deps.Annotator.Annotate(frame, info, metrics)
	if err != nil {
		return fmt.Errorf("annotate frame: %w", err)
	}

	p.latestFrame.Store(&encoded)
	p.latestMetrics.Store(&metrics)
	return nil
}

// recognizeEmployees marks the detection containing each recognized face.
// The first matching reference wins for a face.
func (p *ProcessingPipeline) recognizeEmployees(ctx context.Context, frame models.Frame, detections []models.Detection) error {
	if p.deps.Faces == nil || len(detections) == 0 {
		return nil
	}
	refs := *p.employees.Load()
	if len(refs) == 0 {
		return nil
	}

	faces, err := p.deps.Faces.Locate(ctx, frame)
	if err != nil {
		return err
	}

	for _, face := range faces {
		for _, emp := range refs {
			if !p.deps.Faces.Matches(face.Encoding, emp.Embedding, p.opts.FaceTolerance) {
				continue
			}
			for i := range detections {
				if detections[i].BBox.Contains(face.Region) {
					detections[i].IsEmployee = true
					detections[i].EmployeeName = emp.Name
					p.log.Debug("Employee recognized: %s", emp.Name)
					break
				}
			}
			break
		}
	}
	return nil
}

func (p *ProcessingPipeline) persist(ctx context.Context, record models.MetricsRecord) {
	if p.deps.Sink == nil {
		return
	}

	p.persistWG.Add(1)
	go func() {
		defer p.persistWG.Done()

		ctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()

		if err := p.deps.Sink.Persist(ctx, record); err != nil {
			p.log.Error("Failed to persist metrics: %v", err)
		}
	}()
}

func (p *ProcessingPipeline) recordTiming(d time.Duration) {
	p.statsMu.Lock()
	p.framesProcessed++
	p.avgMs = p.avgMs*0.9 + durationMs(d)*0.1
	n, avg := p.framesProcessed, p.avgMs
	p.statsMu.Unlock()

	if n%progressEvery == 0 {
		p.log.Info("Processed %d frames, avg: %.1fms", n, avg)
	}
}

func (p *ProcessingPipeline) setLastError(err error) {
	p.statsMu.Lock()
	p.lastError = err.Error()
	p.statsMu.Unlock()
}

// ReloadEmployeeDirectory swaps in the current set of active reference
// embeddings. A frame already in flight keeps using the previous set.
func (p *ProcessingPipeline) ReloadEmployeeDirectory(ctx context.Context) error {
	if p.deps.Directory == nil {
		return nil
	}

	list, err := p.deps.Directory.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active employees: %w", err)
	}

	refs := make([]models.Employee, 0, len(list))
	for _, emp := range list {
		if emp.Status != "" && emp.Status != models.EmployeeActive {
			continue
		}
		if len(emp.Embedding) == 0 {
			continue
		}
		refs = append(refs, emp)
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })

	p.employees.Store(&refs)
	p.log.Info("Loaded %d employee embeddings", len(refs))
	return nil
}

// GetLatestFrame returns the newest annotated JPEG, or nil before the first frame.
func (p *ProcessingPipeline) GetLatestFrame() []byte {
	if b := p.latestFrame.Load(); b != nil {
		return *b
	}
	return nil
}

func (p *ProcessingPipeline) GetLatestMetrics() *models.Metrics {
	return p.latestMetrics.Load()
}

func (p *ProcessingPipeline) IsCameraHealthy() bool {
	return p.deps.Camera.IsHealthy()
}

func (p *ProcessingPipeline) GetStats() Stats {
	p.statsMu.RLock()
	s := Stats{
		FramesProcessed:     p.framesProcessed,
		AvgProcessingTimeMs: p.avgMs,
		LastError:           p.lastError,
	}
	p.statsMu.RUnlock()

	s.CameraHealthy = p.deps.Camera.IsHealthy()
	s.CameraStats = p.deps.Camera.GetStats()
	s.LastMetrics = p.latestMetrics.Load()
	s.IsRunning = p.IsRunning()
	s.FaceRecognition = p.deps.Faces != nil
	s.EmployeesLoaded = len(*p.employees.Load())
	return s
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
