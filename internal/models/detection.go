package models

// BBox is an axis-aligned box in pixel coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the box midpoint.
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

func (b BBox) Width() float64 {
	return b.X2 - b.X1
}

func (b BBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Contains reports whether r lies fully inside b (edges inclusive).
func (b BBox) Contains(r BBox) bool {
	return within(r.X1, b.X1, b.X2) && within(r.X2, b.X1, b.X2) &&
		within(r.Y1, b.Y1, b.Y2) && within(r.Y2, b.Y1, b.Y2)
}

func within(v, lo, hi float64) bool {
	return lo <= v && v <= hi
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PersonBox is a raw person detector hit.
type PersonBox struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Detection is one person in one frame. PersonID is unique within the frame.
type Detection struct {
	BBox         BBox    `json:"bbox"`
	Confidence   float64 `json:"confidence"`
	PersonID     string  `json:"person_id"`
	IsEmployee   bool    `json:"is_employee"`
	EmployeeName string  `json:"employee_name,omitempty"`
}

// FaceRegion is a located face with its encoding.
type FaceRegion struct {
	Region   BBox      `json:"region"`
	Encoding []float64 `json:"encoding"`
}
