// Package capture keeps a live camera stream connected and publishes a
// rate-limited stream of frames into a bounded drop-oldest queue.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

var (
	// ErrNotOpened is returned by an Opener that could not open the stream.
	ErrNotOpened = errors.New("capture: stream not opened")
	// ErrReadFailed means the stream is broken and must be reopened.
	ErrReadFailed = errors.New("capture: read failed")
	// ErrNoFrame means the stream is alive but had nothing to return yet.
	ErrNoFrame = errors.New("capture: no frame available")
)

const (
	healthWindow   = 5 * time.Second
	noFrameBackoff = 100 * time.Millisecond
	joinTimeout    = 5 * time.Second
	fpsWindow      = time.Second
)

// Source is an opened stream. Read is only ever called from one goroutine.
type Source interface {
	Read() (models.Frame, error)
	Close() error
}

// Opener opens a fresh Source for the configured stream.
type Opener func(ctx context.Context) (Source, error)

type Options struct {
	URL              string
	TargetFPS        int
	ReconnectTimeout time.Duration
	ReadTimeout      time.Duration
	QueueSize        int
}

func (o Options) withDefaults() Options {
	if o.TargetFPS <= 0 {
		o.TargetFPS = 5
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 30
	}
	return o
}

// Stats is a point-in-time copy of the capture counters.
type Stats struct {
	IsConnected          bool      `json:"is_connected"`
	FPSReceived          float64   `json:"fps_received"`
	FPSProcessed         float64   `json:"fps_processed"`
	FramesDropped        int64     `json:"frames_dropped"`
	LastFrameTime        time.Time `json:"last_frame_time"`
	ReconnectionAttempts int64     `json:"reconnection_attempts"`
	TotalFramesCaptured  int64     `json:"total_frames_captured"`
}

// CameraCapture owns the stream connection and the capture goroutine.
type CameraCapture struct {
	opts     Options
	open     Opener
	log      *logger.Logger
	queue    *FrameQueue
	interval time.Duration

	joinTimeout time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) bool

	statsMu sync.RWMutex
	stats   Stats

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the capture goroutine once it is running.
	src          Source
	lastRead     time.Time
	lastAccepted time.Time
	windowStart  time.Time
	accepted     int
	received     int
	seq          int64
}

func NewCameraCapture(opts Options, open Opener, log *logger.Logger) *CameraCapture {
	opts = opts.withDefaults()
	return &CameraCapture{
		opts:        opts,
		open:        open,
		log:         log.WithField("component", "capture"),
		queue:       NewFrameQueue(opts.QueueSize),
		interval:    time.Second / time.Duration(opts.TargetFPS),
		joinTimeout: joinTimeout,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Connect opens the stream, checks it with one test read and starts the
// capture goroutine. Calling it while connected is a no-op. A capture
// goroutine left behind by a timed-out Disconnect is awaited first, bounded by ctx.
func (c *CameraCapture) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.cancel != nil {
		return nil
	}

	if c.done != nil {
		select {
		case <-c.done:
			c.done = nil
		case <-ctx.Done():
			return fmt.Errorf("previous capture loop still running: %w", ctx.Err())
		}
	}

	if err := c.establish(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)

	c.log.Info("Capture loop started, target FPS %d", c.opts.TargetFPS)
	return nil
}

// establish opens the stream, verifies it with one read and resets the loop state.
func (c *CameraCapture) establish(ctx context.Context) error {
	c.log.Info("Connecting to camera: %s", SanitizeURL(c.opts.URL))

	src, err := c.open(ctx)
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("failed to open stream: %w", err)
	}

	frame, err := src.Read()
	if err != nil {
		src.Close()
		c.setConnected(false)
		return fmt.Errorf("failed to read test frame: %w", err)
	}
	c.log.Info("Camera connection established, frame size %dx%d", frame.Width, frame.Height)

	now := c.now()
	c.src = src
	c.lastRead = now
	c.lastAccepted = time.Time{}
	c.windowStart = now
	c.accepted, c.received = 0, 0
	c.setConnected(true)
	return nil
}

func (c *CameraCapture) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.closeSource()

	for ctx.Err() == nil {
		c.step(ctx)
	}
	c.log.Info("Capture loop stopped")
}

// step performs one iteration of the capture loop.
func (c *CameraCapture) step(ctx context.Context) {
	now := c.now()
	if now.Sub(c.lastRead) > c.opts.ReadTimeout {
		c.log.Warning("No frames received for %v, reconnecting", c.opts.ReadTimeout)
		c.reconnect(ctx)
		return
	}

	if c.src == nil {
		c.reconnect(ctx)
		return
	}

	frame, err := c.src.Read()
	if errors.Is(err, ErrNoFrame) {
		c.sleep(ctx, noFrameBackoff)
		return
	}
	if err != nil {
		c.log.Warning("Failed to read frame: %v", err)
		c.reconnect(ctx)
		return
	}

	now = c.now()
	c.lastRead = now
	c.received++

	if c.lastAccepted.IsZero() || now.Sub(c.lastAccepted) >= c.interval {
		c.lastAccepted = now
		c.accepted++
		c.seq++
		frame.Seq = c.seq
		frame.Timestamp = now

		dropped := c.queue.Push(frame)

		c.statsMu.Lock()
		c.stats.TotalFramesCaptured++
		c.stats.LastFrameTime = now
		if dropped {
			c.stats.FramesDropped++
		}
		c.statsMu.Unlock()
	}

	if elapsed := now.Sub(c.windowStart); elapsed >= fpsWindow {
		secs := elapsed.Seconds()
		c.statsMu.Lock()
		c.stats.FPSProcessed = float64(c.accepted) / secs
		c.stats.FPSReceived = float64(c.received) / secs
		c.statsMu.Unlock()
		c.accepted, c.received = 0, 0
		c.windowStart = now
	}
}

// reconnect releases the stream, waits ReconnectTimeout and tries once to
// reopen it. The stall timer restarts whatever the outcome.
func (c *CameraCapture) reconnect(ctx context.Context) {
	c.statsMu.Lock()
	c.stats.ReconnectionAttempts++
	c.stats.IsConnected = false
	attempt := c.stats.ReconnectionAttempts
	c.statsMu.Unlock()

	c.closeSource()
	defer func() { c.lastRead = c.now() }()

	if !c.sleep(ctx, c.opts.ReconnectTimeout) {
		return
	}

	src, err := c.open(ctx)
	if err != nil {
		c.log.Error("Reconnection attempt %d failed: %v", attempt, err)
		return
	}
	if _, err := src.Read(); err != nil {
		src.Close()
		c.log.Error("Reconnection attempt %d failed on test read: %v", attempt, err)
		return
	}

	c.src = src
	c.setConnected(true)
	c.log.Info("Camera reconnected after %d attempt(s)", attempt)
}

func (c *CameraCapture) closeSource() {
	if c.src == nil {
		return
	}
	if err := c.src.Close(); err != nil {
		c.log.Error("Error releasing stream: %v", err)
	}
	c.src = nil
}

func (c *CameraCapture) setConnected(v bool) {
	c.statsMu.Lock()
	c.stats.IsConnected = v
	c.statsMu.Unlock()
}

// GetFrame waits up to timeout for the next queued frame.
func (c *CameraCapture) GetFrame(timeout time.Duration) (models.Frame, bool) {
	return c.queue.Pop(timeout)
}

// GetLatestFrame drops everything queued except the newest frame and returns it.
func (c *CameraCapture) GetLatestFrame() (models.Frame, bool) {
	return c.queue.Latest()
}

func (c *CameraCapture) GetStats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// IsHealthy reports whether the stream is connected and delivered a frame recently.
func (c *CameraCapture) IsHealthy() bool {
	s := c.GetStats()
	if !s.IsConnected || s.LastFrameTime.IsZero() {
		return false
	}
	return c.now().Sub(s.LastFrameTime) < healthWindow
}

// Disconnect stops the capture goroutine, waiting at most a few seconds for
// it, then empties the queue. Safe to call repeatedly or before Connect.
func (c *CameraCapture) Disconnect() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.cancel != nil {
		c.log.Info("Disconnecting from camera")
		c.cancel()
		c.cancel = nil
		select {
		case <-c.done:
			c.done = nil
		case <-time.After(c.joinTimeout):
			c.log.Warning("Capture loop did not stop within %v", c.joinTimeout)
		}
	}

	c.queue.Drain()
	c.setConnected(false)
}
