package models

import "fmt"

// Group is a set of detections clustered together in one frame.
type Group struct {
	GroupID            int      `json:"group_id"`
	Members            []string `json:"members"`
	Centroid           Point    `json:"centroid"`
	PotentialCustomers int      `json:"potential_customers"`
}

func (g Group) MemberCount() int {
	return len(g.Members)
}

// Label is the caption drawn next to members of this group.
func (g Group) Label() string {
	switch n := len(g.Members); {
	case n == 1:
		return "Individual"
	case n <= 4:
		return fmt.Sprintf("Group of %d", n)
	default:
		return fmt.Sprintf("Large Group (%d)", n)
	}
}

type GroupDetail struct {
	GroupID            int    `json:"group_id"`
	Size               int    `json:"size"`
	PotentialCustomers int    `json:"potential_customers"`
	Label              string `json:"label"`
}

// ColorClass selects the annotation style for a box.
type ColorClass string

const (
	ColorEmployee   ColorClass = "blue"
	ColorGroup      ColorClass = "yellow"
	ColorIndividual ColorClass = "green"
)

type VisualItem struct {
	BBox     BBox       `json:"bbox"`
	Label    string     `json:"label"`
	Color    ColorClass `json:"color"`
	PersonID string     `json:"person_id"`
	GroupID  *int       `json:"group_id,omitempty"`
}

// VisualizationInfo buckets every detection for rendering.
type VisualizationInfo struct {
	Employees   []VisualItem `json:"employees"`
	Individuals []VisualItem `json:"individuals"`
	Groups      []VisualItem `json:"groups"`
}
