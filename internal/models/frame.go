package models

import "time"

// Frame is one accepted camera frame. Data holds packed BGR24 pixels (Width*Height*3 bytes).
type Frame struct {
	Seq       int64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}
