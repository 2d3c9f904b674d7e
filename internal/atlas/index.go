package atlas

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
	"github.com/empsgit/tram-monitor-ekb/internal/geo"
)

// Index is one immutable generation of the route atlas: every resolved
// route, plus bookkeeping for diagnostics. A new generation is built
// off-path by Builder.Build and installed atomically by the caller
// (internal/scheduler publishes it through Holder's atomic.Pointer),
// per spec.md §4.4's atomicity requirement.
type Index struct {
	GenerationID int
	BuiltAt      time.Time
	Routes       map[int]*domain.ResolvedRoute

	// byNumber indexes routes by their human number string, since vehicles
	// report RouteNumber rather than RouteID (spec.md §4.5 step 1).
	byNumber map[string][]*domain.ResolvedRoute
}

// RoutesByNumber returns every resolved route sharing the given human
// number (normally one, occasionally more if the source reuses numbers).
func (idx *Index) RoutesByNumber(number string) []*domain.ResolvedRoute {
	return idx.byNumber[number]
}

// Builder assembles a new Index generation from raw routes and the points
// catalog, driving C2 (resolve) then C3 (geometry) then the arc-length /
// stop-projection tables C4 requires.
type Builder struct {
	geometry *GeometryFetcher
	log      *zap.Logger
}

// NewBuilder constructs a Builder using geometry for street-following
// polylines.
func NewBuilder(geometry *GeometryFetcher, log *zap.Logger) *Builder {
	return &Builder{geometry: geometry, log: log}
}

// Build resolves every route against the points catalog, fetches geometry
// for each, and returns the next generation. generationID should be
// monotonically increasing across calls from the scheduler. ok is false
// when a built route's cumulative-distance table is not non-decreasing —
// an internal invariant violation per spec.md §7 — in which case the
// caller must keep the previous generation installed rather than call
// Holder.Set with this result.
func (b *Builder) Build(ctx context.Context, generationID int, routes []domain.Route, stops []domain.Stop) (*Index, bool) {
	catalog := BuildPointsCatalog(stops)
	idx := &Index{
		GenerationID: generationID,
		BuiltAt:      time.Now().UTC(),
		Routes:       make(map[int]*domain.ResolvedRoute, len(routes)),
		byNumber:     make(map[string][]*domain.ResolvedRoute),
	}

	for _, raw := range routes {
		resolved := b.buildRoute(ctx, raw, catalog)
		if !cumulativeIsMonotone(resolved) {
			if b.log != nil {
				b.log.Error("refusing atlas generation: non-monotone cumulative distance table",
					zap.Int("route_id", resolved.ID))
			}
			return nil, false
		}
		idx.Routes[resolved.ID] = resolved
		idx.byNumber[resolved.Number] = append(idx.byNumber[resolved.Number], resolved)
	}

	return idx, true
}

// cumulativeIsMonotone checks the invariant spec.md §3 requires of every
// direction's arc-length table: strictly non-decreasing, starting at 0.
func cumulativeIsMonotone(r *domain.ResolvedRoute) bool {
	for _, dg := range r.Directions {
		if len(dg.Cumulative) == 0 {
			continue
		}
		if dg.Cumulative[0] != 0 {
			return false
		}
		for i := 1; i < len(dg.Cumulative); i++ {
			if dg.Cumulative[i] < dg.Cumulative[i-1] {
				return false
			}
		}
	}
	return true
}

func (b *Builder) buildRoute(ctx context.Context, raw domain.Route, catalog map[int]domain.Stop) *domain.ResolvedRoute {
	resolved := &domain.ResolvedRoute{ID: raw.ID, Number: raw.Number, Name: raw.Name}

	forward := ResolveDirection(raw.ForwardPath, catalog)
	b.attachGeometry(ctx, &forward, true, nil)
	resolved.Directions[domain.DirectionForward] = forward

	reverse := ResolveDirection(raw.ReversePath, catalog)
	// Per spec.md §4.3 open question: the reverse direction reuses the
	// forward polyline reversed when no reverse-specific waypoints were
	// requested. We never request independent reverse waypoints, so reverse
	// geometry is always the forward polyline reversed; this is recorded
	// on the reverse direction via HasOSRMGeometry mirroring the forward
	// value.
	b.attachGeometry(ctx, &reverse, false, &forward)
	resolved.Directions[domain.DirectionReverse] = reverse

	return resolved
}

// attachGeometry fills in a direction's polyline and derived tables.
// isForward routes request fresh OSRM geometry; the reverse direction
// reuses forward's polyline reversed, and its HasOSRMGeometry, when provided.
func (b *Builder) attachGeometry(ctx context.Context, dg *domain.DirectionGeometry, isForward bool, forward *domain.DirectionGeometry) {
	if len(dg.Stops) < 2 {
		if len(dg.Stops) == 1 {
			dg.Polyline = []domain.LatLon{{Lat: dg.Stops[0].Lat, Lon: dg.Stops[0].Lon}}
		}
		b.finishGeometry(dg)
		return
	}

	if isForward {
		waypoints := make([]domain.LatLon, len(dg.Stops))
		for i, s := range dg.Stops {
			waypoints[i] = domain.LatLon{Lat: s.Lat, Lon: s.Lon}
		}

		if b.geometry != nil {
			line, err := b.geometry.FetchPolyline(ctx, waypoints)
			if err == nil && len(line) >= 2 {
				dg.Polyline = line
				dg.HasOSRMGeometry = true
				b.finishGeometry(dg)
				return
			}
			if b.log != nil {
				b.log.Warn("osrm geometry fetch failed, falling back to straight line", zap.Error(err))
			}
		}

		dg.Polyline = StraightLineFallback(dg.Stops)
		dg.HasOSRMGeometry = false
		b.finishGeometry(dg)
		return
	}

	if forward != nil && len(forward.Polyline) >= 2 {
		dg.Polyline = ReversePolyline(forward.Polyline)
		dg.HasOSRMGeometry = forward.HasOSRMGeometry
	} else {
		dg.Polyline = StraightLineFallback(dg.Stops)
		dg.HasOSRMGeometry = false
	}
	b.finishGeometry(dg)
}

// finishGeometry computes the cumulative arc-length table and each stop's
// distance-along, per spec.md §3/§4.4.
func (b *Builder) finishGeometry(dg *domain.DirectionGeometry) {
	if len(dg.Polyline) == 0 {
		return
	}
	proj := geo.NewProjector(geo.MeanLatitude(dg.Polyline))
	cum, total := geo.CumulativeDistance(dg.Polyline, proj)
	dg.Cumulative = cum
	dg.Length = total

	dg.DistanceAlong = make([]float64, len(dg.Stops))
	prev := -1.0
	for i, s := range dg.Stops {
		res := geo.ProjectPoint(dg.Polyline, cum, proj, s.Lat, s.Lon)
		dg.DistanceAlong[i] = res.DistanceAlong
		if res.DistanceAlong < prev {
			dg.NonMonotonicStops = true
		}
		prev = res.DistanceAlong
	}
}

// SortedStopDistances returns the stop indices of a direction sorted by
// DistanceAlong, used by the stop detector's binary search (C6). Ties keep
// the original (path) order, per spec.md §4.6.
func SortedStopDistances(dg *domain.DirectionGeometry) []int {
	order := make([]int, len(dg.Stops))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dg.DistanceAlong[order[i]] < dg.DistanceAlong[order[j]]
	})
	return order
}
