package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"occupancy/internal/config"
	"occupancy/internal/logger"
	"occupancy/internal/models"
)

const (
	// DetectionThreshold is the default minimum confidence for a person box.
	DetectionThreshold = 0.5
	// personClassID is "person" in the COCO label map used by SSD MobileNet.
	personClassID = 1
)

// PersonDetector finds people in frames with an SSD MobileNet network.
type PersonDetector struct {
	net        gocv.Net
	modelPath  string
	configPath string
	threshold  float64
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewPersonDetector loads the network described by cfg.ModelPath and cfg.ConfigPath.
func NewPersonDetector(cfg *config.Config, log *logger.Logger) (*PersonDetector, error) {
	threshold := cfg.DetectionThreshold
	if threshold <= 0 {
		threshold = DetectionThreshold
	}

	d := &PersonDetector{
		modelPath:  cfg.ModelPath,
		configPath: cfg.ConfigPath,
		threshold:  threshold,
		logger:     log.WithField("component", "detector"),
	}

	if err := d.initializeNet(); err != nil {
		return nil, err
	}
	return d, nil
}

// initializeNet loads the network from the model and config files.
func (d *PersonDetector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}

	if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", d.configPath)
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.logger.Info("Person detection network initialized")
	return nil
}

// Detect returns the person boxes found in frame, clamped to the frame.
func (d *PersonDetector) Detect(ctx context.Context, frame models.Frame) ([]models.PersonBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	cols := float64(mat.Cols())
	rows := float64(mat.Rows())

	results := make([]models.PersonBox, 0)
	detections := output.Reshape(1, output.Total()/7)
	defer detections.Close()

	for i := 0; i < detections.Rows(); i++ {
		confidence := float64(detections.GetFloatAt(i, 2))
		if confidence < d.threshold {
			continue
		}
		if int(detections.GetFloatAt(i, 1)) != personClassID {
			continue
		}

		box := models.BBox{
			X1: clamp(float64(detections.GetFloatAt(i, 3))*cols, 0, cols),
			Y1: clamp(float64(detections.GetFloatAt(i, 4))*rows, 0, rows),
			X2: clamp(float64(detections.GetFloatAt(i, 5))*cols, 0, cols),
			Y2: clamp(float64(detections.GetFloatAt(i, 6))*rows, 0, rows),
		}
		if box.Width() <= 0 || box.Height() <= 0 {
			continue
		}

		results = append(results, models.PersonBox{BBox: box, Confidence: confidence})
	}

	d.logger.Debug("Detected %d person(s)", len(results))
	return results, nil
}

func (d *PersonDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
