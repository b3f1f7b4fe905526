package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"occupancy/internal/models"
	"occupancy/internal/repository"
)

type employeeRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	Embedding string    `db:"embedding"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EmployeeRepository implements repository.EmployeeRepository for SQLite.
type EmployeeRepository struct {
	db  *DB
	now func() time.Time
}

func NewEmployeeRepository(db *DB) *EmployeeRepository {
	return &EmployeeRepository{db: db, now: time.Now}
}

// Insert adds a new employee. An empty status means active.
func (r *EmployeeRepository) Insert(ctx context.Context, emp *models.Employee) (int64, error) {
	if emp.Name == "" {
		return 0, errors.New("employee name is required")
	}
	if emp.Status == "" {
		emp.Status = models.EmployeeActive
	}

	embedding := emp.Embedding
	if embedding == nil {
		embedding = []float64{}
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return 0, fmt.Errorf("failed to encode embedding: %w", err)
	}

	now := r.now().UTC()

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO employees (name, status, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, emp.Name, emp.Status, string(data), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert employee: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	emp.ID, emp.CreatedAt, emp.UpdatedAt = id, now, now
	return id, nil
}

func (r *EmployeeRepository) GetByID(ctx context.Context, id int64) (*models.Employee, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var row employeeRow
	err := r.db.Conn().GetContext(ctx, &row, `SELECT * FROM employees WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	emp, err := makeEmployee(row)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// List returns every employee ordered by id.
func (r *EmployeeRepository) List(ctx context.Context) ([]models.Employee, error) {
	return r.selectEmployees(ctx, `SELECT * FROM employees ORDER BY id`)
}

// ListActive returns active employees that have a reference embedding.
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]models.Employee, error) {
	list, err := r.selectEmployees(ctx, `SELECT * FROM employees WHERE status = ? ORDER BY id`, models.EmployeeActive)
	if err != nil {
		return nil, err
	}

	active := list[:0]
	for _, emp := range list {
		if len(emp.Embedding) > 0 {
			active = append(active, emp)
		}
	}
	return active, nil
}

func (r *EmployeeRepository) Deactivate(ctx context.Context, id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		UPDATE employees SET status = ?, updated_at = ? WHERE id = ?
	`, models.EmployeeInactive, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate employee: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *EmployeeRepository) selectEmployees(ctx context.Context, query string, args ...interface{}) ([]models.Employee, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var rows []employeeRow
	if err := r.db.Conn().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}

	employees := make([]models.Employee, 0, len(rows))
	for _, row := range rows {
		emp, err := makeEmployee(row)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, nil
}

func makeEmployee(row employeeRow) (models.Employee, error) {
	emp := models.Employee{
		ID:        row.ID,
		Name:      row.Name,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Embedding), &emp.Embedding); err != nil {
		return models.Employee{}, fmt.Errorf("failed to decode embedding for employee %d: %w", row.ID, err)
	}
	return emp, nil
}
