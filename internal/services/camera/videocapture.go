// Package camera opens network camera streams with OpenCV's FFmpeg backend.
package camera

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"occupancy/internal/capture"
	"occupancy/internal/models"
)

// VideoSource reads BGR frames from a gocv VideoCapture.
type VideoSource struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
	bgr gocv.Mat
}

// Opener returns a capture.Opener for the given stream URL.
func Opener(url string) capture.Opener {
	return func(ctx context.Context) (capture.Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Open(url)
	}
}

// Open connects to url with a one-frame internal buffer to keep latency low.
func Open(url string) (*VideoSource, error) {
	vc, err := gocv.VideoCaptureFileWithAPI(url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrNotOpened, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, capture.ErrNotOpened
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &VideoSource{
		vc:  vc,
		mat: gocv.NewMat(),
		bgr: gocv.NewMat(),
	}, nil
}

// Read grabs the next frame. A closed or broken stream yields ErrReadFailed;
// an empty decode yields ErrNoFrame.
func (s *VideoSource) Read() (models.Frame, error) {
	if ok := s.vc.Read(&s.mat); !ok {
		return models.Frame{}, capture.ErrReadFailed
	}
	if s.mat.Empty() {
		return models.Frame{}, capture.ErrNoFrame
	}

	src := s.mat
	switch s.mat.Channels() {
	case 3:
	case 1:
		if err := gocv.CvtColor(s.mat, &s.bgr, gocv.ColorGrayToBGR); err != nil {
			return models.Frame{}, fmt.Errorf("failed to convert frame: %w", err)
		}
		src = s.bgr
	case 4:
		if err := gocv.CvtColor(s.mat, &s.bgr, gocv.ColorBGRAToBGR); err != nil {
			return models.Frame{}, fmt.Errorf("failed to convert frame: %w", err)
		}
		src = s.bgr
	default:
		return models.Frame{}, fmt.Errorf("unsupported frame with %d channels", s.mat.Channels())
	}

	return models.Frame{
		Width:  src.Cols(),
		Height: src.Rows(),
		Data:   src.ToBytes(),
	}, nil
}

func (s *VideoSource) Close() error {
	s.mat.Close()
	s.bgr.Close()
	return s.vc.Close()
}
