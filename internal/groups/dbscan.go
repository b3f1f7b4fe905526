package groups

import "occupancy/internal/models"

const noise = -1

// dbscan labels points with cluster ids 0..k-1 or noise. Neighborhoods are
// inclusive (distance <= eps) and contain the point itself. Clusters are
// grown from core points in index order, so labels depend only on input order
// and geometry.
func dbscan(points []models.Point, eps float64, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noise
	}

	eps2 := eps * eps
	neighborhoods := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx := points[i].X - points[j].X
			dy := points[i].Y - points[j].Y
			if dx*dx+dy*dy <= eps2 {
				neighborhoods[i] = append(neighborhoods[i], j)
			}
		}
	}

	core := make([]bool, n)
	for i, nb := range neighborhoods {
		core[i] = len(nb) >= minSamples
	}

	cluster := 0
	var stack []int
	for start := 0; start < n; start++ {
		if labels[start] != noise || !core[start] {
			continue
		}

		i := start
		for {
			if labels[i] == noise {
				labels[i] = cluster
				if core[i] {
					for _, j := range neighborhoods[i] {
						if labels[j] == noise {
							stack = append(stack, j)
						}
					}
				}
			}
			if len(stack) == 0 {
				break
			}
			i = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
		cluster++
	}

	return labels
}
