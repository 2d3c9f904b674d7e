// Package stops implements C6, the stop detector: given a matched
// direction and a distance-along, it finds the previous stop and the next
// up to five, using the direction's stops pre-sorted by distance-along.
// Grounded on the teacher's FindClosestPointIndex linear scan in
// metro/geometry.go, replaced here with a binary search since C4 already
// guarantees a sorted order to search over.
package stops

import (
	"sort"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

const maxNextStops = 5

// Detect returns the previous stop (nil if none), up to maxNextStops
// upcoming stops for a vehicle at distanceAlong within dg, and each next
// stop's own DistanceAlong (parallel to next, for the caller's ETA calc).
// order is the direction's stop indices sorted by DistanceAlong
// (atlas.SortedStopDistances), so ties break by original path order per
// spec.md §4.6.
func Detect(dg *domain.DirectionGeometry, order []int, distanceAlong float64) (prev *domain.StopRef, next []domain.NextStopETA, nextDistances []float64) {
	if len(order) == 0 {
		return nil, nil, nil
	}

	// Last index in order whose distance ≤ distanceAlong.
	splitAt := sort.Search(len(order), func(i int) bool {
		return dg.DistanceAlong[order[i]] > distanceAlong
	})

	if splitAt > 0 {
		stopIdx := order[splitAt-1]
		s := dg.Stops[stopIdx]
		prev = &domain.StopRef{ID: s.ID, Name: s.Name}
	}

	for i := splitAt; i < len(order) && len(next) < maxNextStops; i++ {
		stopIdx := order[i]
		s := dg.Stops[stopIdx]
		next = append(next, domain.NextStopETA{ID: s.ID, Name: s.Name})
		nextDistances = append(nextDistances, dg.DistanceAlong[stopIdx])
	}

	return prev, next, nextDistances
}
