package capture

import (
	"time"

	"occupancy/internal/models"
)

// FrameQueue is a bounded FIFO that evicts its oldest frame instead of
// blocking the producer. It has one producer (the capture loop) and any
// number of consumers.
type FrameQueue struct {
	frames chan models.Frame
}

func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{frames: make(chan models.Frame, capacity)}
}

// Push enqueues f and reports whether an older frame had to be evicted.
func (q *FrameQueue) Push(f models.Frame) (dropped bool) {
	for {
		select {
		case q.frames <- f:
			return dropped
		default:
		}

		select {
		case <-q.frames:
			dropped = true
		default:
		}
	}
}

// Pop waits up to timeout for a frame.
func (q *FrameQueue) Pop(timeout time.Duration) (models.Frame, bool) {
	select {
	case f := <-q.frames:
		return f, true
	default:
	}

	if timeout <= 0 {
		return models.Frame{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.frames:
		return f, true
	case <-timer.C:
		return models.Frame{}, false
	}
}

// Latest empties the queue and returns the newest frame, if any.
func (q *FrameQueue) Latest() (models.Frame, bool) {
	var (
		last  models.Frame
		found bool
	)
	for {
		select {
		case f := <-q.frames:
			last, found = f, true
		default:
			return last, found
		}
	}
}

// Drain discards everything currently queued.
func (q *FrameQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.frames:
			n++
		default:
			return n
		}
	}
}

func (q *FrameQueue) Len() int {
	return len(q.frames)
}
