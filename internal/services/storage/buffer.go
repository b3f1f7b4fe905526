package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"occupancy/internal/logger"
	"occupancy/internal/models"
	"occupancy/internal/repository"
)

var ErrBufferFull = errors.New("storage: event buffer full")

// BufferService batches camera events in memory and writes them to the
// repository in one transaction per flush.
type BufferService struct {
	repo        repository.CameraEventRepository
	events      []models.CameraEvent
	bufferLimit int
	mu          sync.Mutex
	flushMu     sync.Mutex
	kick        chan struct{}
	logger      *logger.Logger
}

func NewBufferService(repo repository.CameraEventRepository, bufferLimit int, log *logger.Logger) *BufferService {
	if bufferLimit <= 0 {
		bufferLimit = 50
	}
	return &BufferService{
		repo:        repo,
		bufferLimit: bufferLimit,
		events:      make([]models.CameraEvent, 0, bufferLimit),
		kick:        make(chan struct{}, 1),
		logger:      log.WithField("component", "storage"),
	}
}

// Run flushes every flushInterval, or early once the buffer fills, until ctx
// is done. Whatever is still buffered is flushed before returning.
func (s *BufferService) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.kick:
		case <-ctx.Done():
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("Final flush failed: %v", err)
			}
			return
		}

		if err := s.Flush(ctx); err != nil {
			s.logger.Error("Flush failed: %v", err)
		}
	}
}

// Persist buffers the record. It never blocks on the database.
func (s *BufferService) Persist(ctx context.Context, rec models.MetricsRecord) error {
	s.mu.Lock()
	if len(s.events) >= s.bufferLimit {
		s.mu.Unlock()
		return ErrBufferFull
	}
	s.events = append(s.events, rec.Event())
	full := len(s.events) >= s.bufferLimit
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush writes all buffered events. Events from a failed batch are dropped.
func (s *BufferService) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.events
	s.events = make([]models.CameraEvent, 0, s.bufferLimit)
	s.mu.Unlock()

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		s.logger.Warning("Dropped %d camera events", len(batch))
		return err
	}

	s.logger.Debug("Flushed %d camera events to database", len(batch))
	return nil
}

func (s *BufferService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
