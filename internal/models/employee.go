package models

import "time"

const (
	EmployeeActive   = "active"
	EmployeeInactive = "inactive"
)

// Employee is a staff member with a reference face embedding.
type Employee struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CameraEvent is one persisted metrics row.
type CameraEvent struct {
	ID                 string        `json:"id"`
	CameraID           string        `json:"camera_id"`
	Timestamp          time.Time     `json:"timestamp"`
	TotalPeople        int           `json:"total_people"`
	CustomersCount     int           `json:"customers_count"`
	EmployeesCount     int           `json:"employees_count"`
	PotentialCustomers int           `json:"potential_customers"`
	GroupsCount        int           `json:"groups_count"`
	IndividualsCount   int           `json:"individuals_count"`
	ProcessingTimeMs   float64       `json:"processing_time_ms"`
	FrameWidth         int           `json:"frame_width"`
	FrameHeight        int           `json:"frame_height"`
	EmployeeNames      []string      `json:"employee_names"`
	GroupsDetail       []GroupDetail `json:"groups_detail"`
	CreatedAt          time.Time     `json:"created_at"`
}
