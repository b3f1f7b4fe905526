// Package groups clusters one frame's person detections into social groups and
// turns group composition into a potential-customer count.
package groups

import (
	"occupancy/internal/models"
)

const (
	// ReferenceHeightMeters is the assumed average adult height.
	ReferenceHeightMeters = 1.7
	// ReferenceHeightPixels is used when there is nothing to estimate the scale from.
	ReferenceHeightPixels = 160.0

	DefaultMaxDistance  = 1.5
	DefaultMinGroupSize = 2
)

// Detector is stateless; a single instance may be shared between goroutines.
type Detector struct {
	maxDistance  float64
	minGroupSize int
}

// NewDetector creates a Detector grouping people closer than maxDistance meters.
// Non-positive arguments fall back to the defaults.
func NewDetector(maxDistance float64, minGroupSize int) *Detector {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if minGroupSize <= 0 {
		minGroupSize = DefaultMinGroupSize
	}
	return &Detector{maxDistance: maxDistance, minGroupSize: minGroupSize}
}

// DetectGroups partitions detections into groups. Every detection appears in
// exactly one group. Clusters come first in cluster order, then noise points as
// singletons; group ids are assigned sequentially from 0.
func (d *Detector) DetectGroups(detections []models.Detection) []models.Group {
	if len(detections) < d.minGroupSize {
		groups := make([]models.Group, 0, len(detections))
		for i, det := range detections {
			groups = append(groups, singleton(i, det))
		}
		return groups
	}

	eps := d.maxDistance * d.EstimatePixelsPerMeter(detections)

	centers := make([]models.Point, len(detections))
	for i, det := range detections {
		centers[i] = det.BBox.Center()
	}
	labels := dbscan(centers, eps, d.minGroupSize)

	clusters := 0
	for _, l := range labels {
		if l+1 > clusters {
			clusters = l + 1
		}
	}
	members := make([][]int, clusters)
	for i, l := range labels {
		if l != noise {
			members[l] = append(members[l], i)
		}
	}

	groups := make([]models.Group, 0, len(detections))
	nextID := 0
	for _, idx := range members {
		g := models.Group{GroupID: nextID, Members: make([]string, 0, len(idx))}
		nonEmployees := 0
		var sx, sy float64
		for _, i := range idx {
			det := detections[i]
			g.Members = append(g.Members, det.PersonID)
			sx += centers[i].X
			sy += centers[i].Y
			if !det.IsEmployee {
				nonEmployees++
			}
		}
		g.Centroid = models.Point{X: sx / float64(len(idx)), Y: sy / float64(len(idx))}
		g.PotentialCustomers = PotentialCustomersFor(nonEmployees)
		groups = append(groups, g)
		nextID++
	}

	for i, l := range labels {
		if l == noise {
			groups = append(groups, singleton(nextID, detections[i]))
			nextID++
		}
	}

	return groups
}

func singleton(id int, det models.Detection) models.Group {
	pc := 1
	if det.IsEmployee {
		pc = 0
	}
	return models.Group{
		GroupID:            id,
		Members:            []string{det.PersonID},
		Centroid:           det.BBox.Center(),
		PotentialCustomers: pc,
	}
}

// EstimatePixelsPerMeter derives the image scale from the median person height.
// With more than three people, heights outside Q1-1.5*IQR..Q3+1.5*IQR are ignored.
func (d *Detector) EstimatePixelsPerMeter(detections []models.Detection) float64 {
	if len(detections) == 0 {
		return ReferenceHeightPixels / ReferenceHeightMeters
	}

	heights := make([]float64, len(detections))
	for i, det := range detections {
		heights[i] = det.BBox.Height()
	}

	h := median(heights)
	if len(heights) > 3 {
		q1 := percentile(heights, 25)
		q3 := percentile(heights, 75)
		iqr := q3 - q1
		lo, hi := q1-1.5*iqr, q3+1.5*iqr

		filtered := make([]float64, 0, len(heights))
		for _, v := range heights {
			if lo <= v && v <= hi {
				filtered = append(filtered, v)
			}
		}
		if len(filtered) > 0 {
			h = median(filtered)
		}
	}

	return h / ReferenceHeightMeters
}

// PotentialCustomersFor maps the non-employee size of a group to purchasing units.
func PotentialCustomersFor(nonEmployees int) int {
	switch {
	case nonEmployees <= 0:
		return 0
	case nonEmployees <= 4:
		return 1
	default:
		return 2
	}
}

// CalculatePotentialCustomers aggregates one frame's groups into a Metrics
// snapshot. Timestamp and CameraID are left for the caller.
func (d *Detector) CalculatePotentialCustomers(groups []models.Group, detections []models.Detection) models.Metrics {
	m := models.Metrics{
		TotalPeople:   len(detections),
		GroupsDetail:  []models.GroupDetail{},
		EmployeeNames: []string{},
	}

	for _, det := range detections {
		if det.IsEmployee {
			m.EmployeesCount++
			if det.EmployeeName != "" {
				m.EmployeeNames = append(m.EmployeeNames, det.EmployeeName)
			}
		} else {
			m.CustomersCount++
		}
	}

	for _, g := range groups {
		m.PotentialCustomers += g.PotentialCustomers
		if g.MemberCount() == 1 {
			m.IndividualsCount++
		}
		if g.MemberCount() >= d.minGroupSize {
			m.GroupsCount++
			m.GroupsDetail = append(m.GroupsDetail, models.GroupDetail{
				GroupID:            g.GroupID,
				Size:               g.MemberCount(),
				PotentialCustomers: g.PotentialCustomers,
				Label:              g.Label(),
			})
		}
	}

	return m
}

// VisualizationInfo buckets every detection for drawing. Employees always go
// to the employee bucket, including those standing inside a group.
func (d *Detector) VisualizationInfo(groups []models.Group, detections []models.Detection) models.VisualizationInfo {
	byID := make(map[string]models.Detection, len(detections))
	for _, det := range detections {
		byID[det.PersonID] = det
	}

	info := models.VisualizationInfo{
		Employees:   []models.VisualItem{},
		Individuals: []models.VisualItem{},
		Groups:      []models.VisualItem{},
	}

	for _, g := range groups {
		for _, pid := range g.Members {
			det, ok := byID[pid]
			if !ok {
				continue
			}

			switch {
			case det.IsEmployee:
				label := det.EmployeeName
				if label == "" {
					label = "Employee"
				}
				info.Employees = append(info.Employees, models.VisualItem{
					BBox: det.BBox, Label: label, Color: models.ColorEmployee, PersonID: pid,
				})
			case g.MemberCount() == 1:
				info.Individuals = append(info.Individuals, models.VisualItem{
					BBox: det.BBox, Label: "Customer", Color: models.ColorIndividual, PersonID: pid,
				})
			default:
				groupID := g.GroupID
				info.Groups = append(info.Groups, models.VisualItem{
					BBox: det.BBox, Label: g.Label(), Color: models.ColorGroup, PersonID: pid, GroupID: &groupID,
				})
			}
		}
	}

	return info
}
