package models

import "time"

// Metrics is the per-frame occupancy snapshot.
type Metrics struct {
	Timestamp          time.Time     `json:"timestamp"`
	CameraID           string        `json:"camera_id"`
	TotalPeople        int           `json:"total_people"`
	EmployeesCount     int           `json:"employees_count"`
	CustomersCount     int           `json:"customers_count"`
	PotentialCustomers int           `json:"potential_customers"`
	GroupsCount        int           `json:"groups_count"`
	IndividualsCount   int           `json:"individuals_count"`
	GroupsDetail       []GroupDetail `json:"groups_detail"`
	EmployeeNames      []string      `json:"employee_names"`
}

// MetricsRecord is what the pipeline hands to its sink.
type MetricsRecord struct {
	Metrics
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	FrameWidth       int     `json:"frame_width"`
	FrameHeight      int     `json:"frame_height"`
}

// Event converts the record into a storable camera event.
func (r MetricsRecord) Event() CameraEvent {
	return CameraEvent{
		CameraID:           r.CameraID,
		Timestamp:          r.Timestamp,
		TotalPeople:        r.TotalPeople,
		CustomersCount:     r.CustomersCount,
		EmployeesCount:     r.EmployeesCount,
		PotentialCustomers: r.PotentialCustomers,
		GroupsCount:        r.GroupsCount,
		IndividualsCount:   r.IndividualsCount,
		ProcessingTimeMs:   r.ProcessingTimeMs,
		FrameWidth:         r.FrameWidth,
		FrameHeight:        r.FrameHeight,
		EmployeeNames:      r.EmployeeNames,
		GroupsDetail:       r.GroupsDetail,
	}
}
