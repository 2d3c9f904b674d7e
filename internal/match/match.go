// Package match implements C5, the route matcher: given a raw vehicle
// reading and its candidate routes (by route number), it snaps the
// vehicle onto the most likely direction's polyline, or reports that
// nothing is close enough. Grounded on the teacher's closest-point scan
// in metro/geometry.go, generalized to the two-direction/perp-distance
// selection and course-based direction inference spec.md §4.5 requires.
package match

import (
	"github.com/empsgit/tram-monitor-ekb/domain"
	"github.com/empsgit/tram-monitor-ekb/internal/geo"
)

// MaxSnapDistanceM is the default perpendicular-distance rejection
// threshold; the tracker may override it via config.
const MaxSnapDistanceM = 300.0

// Result is the outcome of a successful match.
type Result struct {
	RouteID       int
	Direction     int
	Progress      float64
	PerpDistanceM float64
	SnappedLat    float64
	SnappedLon    float64
	DistanceAlong float64
}

// candidateProjection is one direction's projection plus its bearing
// agreement with the vehicle's reported course.
type candidateProjection struct {
	routeID int
	dir     int
	res     geo.ProjectResult
	agrees  bool // Δ(course, segment bearing) ≤ 90°
}

// Match resolves v against candidates (every ResolvedRoute whose Number
// equals v.RouteNumber), projecting onto both directions of every
// candidate and picking a winner per spec.md §4.5: the projection whose
// bearing agrees with the vehicle's course wins over one that doesn't,
// provided both are within maxSnapDistanceM; ties (neither or both
// agree) break on perpendicular distance. Agreement is a strict
// Δ ≤ 90° test with no tolerance band, so a Δ just under 90° still wins
// over a Δ just over it regardless of distance. ok is false when nothing
// projects within maxSnapDistanceM.
func Match(v domain.RawVehicle, candidates []*domain.ResolvedRoute, maxSnapDistanceM float64) (Result, bool) {
	var within []candidateProjection

	for _, route := range candidates {
		for dir := 0; dir < 2; dir++ {
			dg := &route.Directions[dir]
			if len(dg.Polyline) < 2 || len(dg.Cumulative) == 0 {
				continue
			}

			proj := geo.NewProjector(geo.MeanLatitude(dg.Polyline))
			res := geo.ProjectPoint(dg.Polyline, dg.Cumulative, proj, v.Lat, v.Lon)
			if res.PerpDistanceM > maxSnapDistanceM {
				continue
			}

			within = append(within, candidateProjection{
				routeID: route.ID,
				dir:     dir,
				res:     res,
				agrees:  geo.AngleDiff(v.CourseDeg, res.SegmentBearingDeg) <= 90,
			})
		}
	}

	if len(within) == 0 {
		return Result{}, false
	}

	best := within[0]
	for _, c := range within[1:] {
		if better(c, best) {
			best = c
		}
	}

	return Result{
		RouteID:       best.routeID,
		Direction:     best.dir,
		Progress:      best.res.Progress,
		PerpDistanceM: best.res.PerpDistanceM,
		SnappedLat:    best.res.SnappedLat,
		SnappedLon:    best.res.SnappedLon,
		DistanceAlong: best.res.DistanceAlong,
	}, true
}

// better reports whether candidate c should replace the current best:
// bearing agreement wins first, perpendicular distance breaks ties. This
// compares across every within-threshold candidate, not just the two
// directions of one route. That's exact when a route number maps to a
// single route, since its reverse direction is always the forward
// polyline reversed (see DESIGN.md), so the two directions' bearing
// agreement is always complementary. If the source ever reuses a route
// number across two physically distinct routes, a farther bearing-
// agreeing candidate on one route could beat a closer non-agreeing one on
// the other; nothing in spec.md §4.5 rules this out, so it's left as is.
func better(c, best candidateProjection) bool {
	if c.agrees != best.agrees {
		return c.agrees
	}
	return c.res.PerpDistanceM < best.res.PerpDistanceM
}
