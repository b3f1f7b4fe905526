package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"occupancy/internal/models"
)

type eventRow struct {
	ID                 string    `db:"id"`
	CameraID           string    `db:"camera_id"`
	Timestamp          time.Time `db:"timestamp"`
	TotalPeople        int       `db:"total_people"`
	CustomersCount     int       `db:"customers_count"`
	EmployeesCount     int       `db:"employees_count"`
	PotentialCustomers int       `db:"potential_customers"`
	GroupsCount        int       `db:"groups_count"`
	IndividualsCount   int       `db:"individuals_count"`
	ProcessingTimeMs   float64   `db:"processing_time_ms"`
	FrameWidth         int       `db:"frame_width"`
	FrameHeight        int       `db:"frame_height"`
	EmployeeNames      string    `db:"employee_names"`
	GroupsDetail       string    `db:"groups_detail"`
	CreatedAt          time.Time `db:"created_at"`
}

const insertEventQuery = `
	INSERT INTO camera_events (
		id, camera_id, timestamp, total_people, customers_count, employees_count,
		potential_customers, groups_count, individuals_count, processing_time_ms,
		frame_width, frame_height, employee_names, groups_detail, created_at
	) VALUES (
		:id, :camera_id, :timestamp, :total_people, :customers_count, :employees_count,
		:potential_customers, :groups_count, :individuals_count, :processing_time_ms,
		:frame_width, :frame_height, :employee_names, :groups_detail, :created_at
	)`

// CameraEventRepository implements repository.CameraEventRepository for SQLite.
type CameraEventRepository struct {
	db  *DB
	now func() time.Time
}

func NewCameraEventRepository(db *DB) *CameraEventRepository {
	return &CameraEventRepository{db: db, now: time.Now}
}

// Insert stores one event, assigning an id when it has none.
func (r *CameraEventRepository) Insert(ctx context.Context, event *models.CameraEvent) error {
	row, err := r.toRow(event)
	if err != nil {
		return err
	}

	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().NamedExecContext(ctx, insertEventQuery, row); err != nil {
		return fmt.Errorf("failed to insert camera event: %w", err)
	}
	event.ID = row.ID
	return nil
}

// InsertBatch stores all events in a single transaction.
func (r *CameraEventRepository) InsertBatch(ctx context.Context, events []models.CameraEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]eventRow, 0, len(events))
	for i := range events {
		row, err := r.toRow(&events[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertEventQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("failed to insert camera event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit camera events: %w", err)
	}

	for i := range events {
		events[i].ID = rows[i].ID
	}
	return nil
}

// ListRecent returns the newest events for a camera, newest first.
func (r *CameraEventRepository) ListRecent(ctx context.Context, cameraID string, limit int) ([]models.CameraEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	r.db.RLock()
	defer r.db.RUnlock()

	var rows []eventRow
	err := r.db.Conn().SelectContext(ctx, &rows, `
		SELECT * FROM camera_events
		WHERE camera_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query camera events: %w", err)
	}

	events := make([]models.CameraEvent, 0, len(rows))
	for _, row := range rows {
		event, err := makeEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// CountSince counts events for a camera at or after since.
func (r *CameraEventRepository) CountSince(ctx context.Context, cameraID string, since time.Time) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM camera_events WHERE camera_id = ? AND timestamp >= ?
	`, cameraID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count camera events: %w", err)
	}
	return count, nil
}

func (r *CameraEventRepository) toRow(event *models.CameraEvent) (eventRow, error) {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	names := event.EmployeeNames
	if names == nil {
		names = []string{}
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to encode employee names: %w", err)
	}

	detail := event.GroupsDetail
	if detail == nil {
		detail = []models.GroupDetail{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to encode groups detail: %w", err)
	}

	return eventRow{
		ID:                 id,
		CameraID:           event.CameraID,
		Timestamp:          event.Timestamp.UTC(),
		TotalPeople:        event.TotalPeople,
		CustomersCount:     event.CustomersCount,
		EmployeesCount:     event.EmployeesCount,
		PotentialCustomers: event.PotentialCustomers,
		GroupsCount:        event.GroupsCount,
		IndividualsCount:   event.IndividualsCount,
		ProcessingTimeMs:   event.ProcessingTimeMs,
		FrameWidth:         event.FrameWidth,
		FrameHeight:        event.FrameHeight,
		EmployeeNames:      string(namesJSON),
		GroupsDetail:       string(detailJSON),
		CreatedAt:          createdAt.UTC(),
	}, nil
}

func makeEvent(row eventRow) (models.CameraEvent, error) {
	event := models.CameraEvent{
		ID:                 row.ID,
		CameraID:           row.CameraID,
		Timestamp:          row.Timestamp,
		TotalPeople:        row.TotalPeople,
		CustomersCount:     row.CustomersCount,
		EmployeesCount:     row.EmployeesCount,
		PotentialCustomers: row.PotentialCustomers,
		GroupsCount:        row.GroupsCount,
		IndividualsCount:   row.IndividualsCount,
		ProcessingTimeMs:   row.ProcessingTimeMs,
		FrameWidth:         row.FrameWidth,
		FrameHeight:        row.FrameHeight,
		CreatedAt:          row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.EmployeeNames), &event.EmployeeNames); err != nil {
		return models.CameraEvent{}, fmt.Errorf("failed to decode employee names for event %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.GroupsDetail), &event.GroupsDetail); err != nil {
		return models.CameraEvent{}, fmt.Errorf("failed to decode groups detail for event %s: %w", row.ID, err)
	}
	return event, nil
}
