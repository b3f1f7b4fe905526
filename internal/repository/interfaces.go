package repository

import (
	"context"
	"errors"
	"time"

	"occupancy/internal/models"
)

var ErrNotFound = errors.New("repository: record not found")

// CameraEventRepository stores one row per processed frame.
type CameraEventRepository interface {
	// Create operations
	Insert(ctx context.Context, event *models.CameraEvent) error
	InsertBatch(ctx context.Context, events []models.CameraEvent) error

	// Read operations
	ListRecent(ctx context.Context, cameraID string, limit int) ([]models.CameraEvent, error)
	CountSince(ctx context.Context, cameraID string, since time.Time) (int, error)
}

// EmployeeRepository manages staff and their reference face embeddings.
type EmployeeRepository interface {
	// Create operations
	Insert(ctx context.Context, emp *models.Employee) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*models.Employee, error)
	List(ctx context.Context) ([]models.Employee, error)
	ListActive(ctx context.Context) ([]models.Employee, error)

	// Update operations
	Deactivate(ctx context.Context, id int64) error
}
