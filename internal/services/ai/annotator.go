package ai

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"occupancy/internal/models"
)

var (
	blue   = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	yellow = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	green  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	black  = color.RGBA{R: 0, G: 0, B: 0, A: 0}
)

// Annotator draws detections and counters on a copy of the frame and encodes it as JPEG.
type Annotator struct {
	quality int
}

func NewAnnotator(quality int) *Annotator {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Annotator{quality: quality}
}

// Annotate never modifies frame.Data.
func (a *Annotator) Annotate(frame models.Frame, info models.VisualizationInfo, metrics models.Metrics) ([]byte, error) {
	mat, err := FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, item := range info.Employees {
		if err := drawBox(&mat, item, blue); err != nil {
			return nil, err
		}
	}
	for _, item := range info.Groups {
		if err := drawBox(&mat, item, yellow); err != nil {
			return nil, err
		}
	}
	for _, item := range info.Individuals {
		if err := drawBox(&mat, item, green); err != nil {
			return nil, err
		}
	}

	if err := drawOverlay(&mat, metrics); err != nil {
		return nil, err
	}

	caption := frame.Timestamp.Format("2006-01-02 15:04:05")
	if err := gocv.PutText(&mat, caption, image.Pt(10, mat.Rows()-20), gocv.FontHersheySimplex, 0.5, white, 1); err != nil {
		return nil, fmt.Errorf("failed to draw timestamp: %w", err)
	}

	return EncodeJPEG(mat, a.quality)
}

func drawBox(mat *gocv.Mat, item models.VisualItem, c color.RGBA) error {
	rect := image.Rect(int(item.BBox.X1), int(item.BBox.Y1), int(item.BBox.X2), int(item.BBox.Y2))
	if err := gocv.Rectangle(mat, rect, c, 2); err != nil {
		return fmt.Errorf("failed to draw rectangle: %w", err)
	}

	pt := image.Pt(rect.Min.X, rect.Min.Y-10)
	if err := gocv.PutText(mat, item.Label, pt, gocv.FontHersheySimplex, 0.5, c, 2); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}

// OverlayLines returns the counter lines drawn in the top-left corner.
func OverlayLines(m models.Metrics) []string {
	return []string{
		fmt.Sprintf("People: %d", m.TotalPeople),
		fmt.Sprintf("Customers: %d", m.PotentialCustomers),
		fmt.Sprintf("Employees: %d", m.EmployeesCount),
		fmt.Sprintf("Groups: %d", m.GroupsCount),
	}
}

func drawOverlay(mat *gocv.Mat, m models.Metrics) error {
	y := 30
	for _, text := range OverlayLines(m) {
		if err := gocv.Rectangle(mat, image.Rect(10, y-20, 250, y+10), black, -1); err != nil {
			return fmt.Errorf("failed to draw overlay: %w", err)
		}
		if err := gocv.PutText(mat, text, image.Pt(15, y), gocv.FontHersheySimplex, 0.6, white, 2); err != nil {
			return fmt.Errorf("failed to draw overlay: %w", err)
		}
		y += 35
	}
	return nil
}
