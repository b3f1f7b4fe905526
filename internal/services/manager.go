package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"occupancy/internal/config"
	"occupancy/internal/logger"
	"occupancy/internal/models"
	"occupancy/internal/services/storage"
	"occupancy/internal/services/websocket"
)

var ErrQueueFull = errors.New("services: dispatch queue full")

const sinkTimeout = 5 * time.Second

// Sink is anything that accepts a metrics record.
type Sink interface {
	Persist(ctx context.Context, rec models.MetricsRecord) error
}

type namedSink struct {
	name string
	sink Sink
}

// lane is one sink with its own queue and workers, so a slow sink only ever
// backs up its own records.
type lane struct {
	namedSink
	queue chan models.MetricsRecord
}

// Manager hands each metrics record to every downstream sink on small
// per-sink worker pools so the processing loop never waits on storage or viewers.
type Manager struct {
	websocketService *websocket.HubService
	logger           *logger.Logger

	lanes      []*lane
	numWorkers int

	stateMu sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewManager starts the dispatch workers. publisher may be nil.
func NewManager(bufferService *storage.BufferService, websocketService *websocket.HubService, publisher *storage.RedisPublisher, cfg *config.Config, log *logger.Logger) *Manager {
	sinks := []namedSink{
		{name: "database", sink: bufferService},
		{name: "viewers", sink: websocketService},
	}
	if publisher != nil {
		sinks = append(sinks, namedSink{name: "redis", sink: publisher})
	}

	m := newManager(sinks, cfg.DispatchWorkers, cfg.DispatchQueue, log)
	m.websocketService = websocketService
	return m
}

func newManager(sinks []namedSink, workers, queueSize int, log *logger.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	m := &Manager{
		numWorkers: workers,
		logger:     log.WithField("component", "manager"),
	}

	for _, s := range sinks {
		l := &lane{namedSink: s, queue: make(chan models.MetricsRecord, queueSize)}
		m.lanes = append(m.lanes, l)
		for i := 0; i < m.numWorkers; i++ {
			m.wg.Add(1)
			go m.dispatchWorker(l, i)
		}
	}

	m.logger.Info("🎬 Manager started - %d sink(s), %d worker(s) each", len(m.lanes), m.numWorkers)
	return m
}

// Persist queues the record for every sink without blocking. A sink whose
// queue is full misses the record; the others still get it.
func (m *Manager) Persist(ctx context.Context, rec models.MetricsRecord) error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	if m.stopped {
		return ErrQueueFull
	}

	var full []string
	for _, l := range m.lanes {
		select {
		case l.queue <- rec:
		default:
			full = append(full, l.name)
		}
	}
	if len(full) > 0 {
		m.logger.Warning("⚠️  Dispatch queue full for %s, camera %s - dropping metrics", strings.Join(full, ", "), rec.CameraID)
		return fmt.Errorf("%w: %s", ErrQueueFull, strings.Join(full, ", "))
	}
	return nil
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) dispatchWorker(l *lane, workerID int) {
	defer m.wg.Done()

	m.logger.Debug("🔧 Dispatch worker %s/%d started", l.name, workerID)

	for rec := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := l.sink.Persist(ctx, rec); err != nil {
			m.logger.Error("Sink %s rejected metrics: %v", l.name, err)
		}
		cancel()
	}

	m.logger.Debug("🔧 Dispatch worker %s/%d stopped", l.name, workerID)
}

// Stop drains queued records and waits for the workers.
func (m *Manager) Stop() {
	m.stateMu.Lock()
	if m.stopped {
		m.stateMu.Unlock()
		return
	}
	m.stopped = true
	for _, l := range m.lanes {
		close(l.queue)
	}
	m.stateMu.Unlock()

	m.wg.Wait()
	m.logger.Info("🛑 All dispatch workers stopped")
}
