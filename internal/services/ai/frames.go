package ai

import (
	"fmt"

	"gocv.io/x/gocv"

	"occupancy/internal/models"
)

// FrameToMat copies a BGR24 frame into a new Mat. The caller must Close it.
func FrameToMat(frame models.Frame) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("frame is empty")
	}
	if len(frame.Data) != frame.Width*frame.Height*3 {
		return gocv.NewMat(), fmt.Errorf("frame data has %d bytes, expected %d", len(frame.Data), frame.Width*frame.Height*3)
	}

	view, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer view.Close()

	return view.Clone(), nil
}

// EncodeJPEG encodes mat with the given quality (1-100).
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// EncodeFrame encodes a raw frame as JPEG.
func EncodeFrame(frame models.Frame, quality int) ([]byte, error) {
	mat, err := FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return EncodeJPEG(mat, quality)
}
