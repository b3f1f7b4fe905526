package pipeline

import (
	"context"
	"time"

	"occupancy/internal/capture"
	"occupancy/internal/models"
)

type PersonDetector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.PersonBox, error)
}

// FaceMatcher locates faces and compares their encodings against references.
type FaceMatcher interface {
	Locate(ctx context.Context, frame models.Frame) ([]models.FaceRegion, error)
	Matches(encoding, reference []float64, tolerance float64) bool
}

type EmployeeDirectory interface {
	ListActive(ctx context.Context) ([]models.Employee, error)
}

// MetricsSink receives one record per processed frame. Failures are logged by the caller.
type MetricsSink interface {
	Persist(ctx context.Context, record models.MetricsRecord) error
}

// Annotator renders the frame with boxes and counters into an encoded image.
type Annotator interface {
	Annotate(frame models.Frame, info models.VisualizationInfo, metrics models.Metrics) ([]byte, error)
}

// Camera is the part of capture.CameraCapture the pipeline drives.
type Camera interface {
	Connect(ctx context.Context) error
	Disconnect()
	GetFrame(timeout time.Duration) (models.Frame, bool)
	GetStats() capture.Stats
	IsHealthy() bool
}
