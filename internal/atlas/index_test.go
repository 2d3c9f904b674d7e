package atlas

import (
	"context"
	"testing"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

func sampleStops() []domain.Stop {
	return []domain.Stop{
		{ID: 1, Name: "Depot", Lat: 56.80, Lon: 60.60, Active: true},
		{ID: 2, Name: "Mid", Lat: 56.84, Lon: 60.60, Active: true},
		{ID: 3, Name: "End", Lat: 56.88, Lon: 60.60, Active: true},
	}
}

func sampleRoutes() []domain.Route {
	return []domain.Route{
		{ID: 10, Number: "1", Name: "Line 1", ForwardPath: []int{1, 2, 3}, ReversePath: []int{3, 2, 1}},
	}
}

// Build without a GeometryFetcher exercises the straight-line fallback path,
// so these tests need no network access.
func TestBuildProducesMonotoneDistanceAlongPerDirection(t *testing.T) {
	b := NewBuilder(nil, nil)
	idx, ok := b.Build(context.Background(), 1, sampleRoutes(), sampleStops())
	if !ok {
		t.Fatal("Build rejected a valid generation")
	}

	route, ok := idx.Routes[10]
	if !ok {
		t.Fatal("route 10 missing from index")
	}

	for dir := 0; dir < 2; dir++ {
		dg := route.Directions[dir]
		if dg.NonMonotonicStops {
			t.Errorf("direction %d: unexpected non-monotonic stops", dir)
		}
		for i := 1; i < len(dg.DistanceAlong); i++ {
			if dg.DistanceAlong[i] < dg.DistanceAlong[i-1] {
				t.Errorf("direction %d: distance_along not monotone at %d: %v", dir, i, dg.DistanceAlong)
			}
		}
		if dg.Length <= 0 {
			t.Errorf("direction %d: expected positive length, got %f", dir, dg.Length)
		}
	}
}

func TestBuildReverseDirectionReusesForwardPolylineReversed(t *testing.T) {
	b := NewBuilder(nil, nil)
	idx, ok := b.Build(context.Background(), 1, sampleRoutes(), sampleStops())
	if !ok {
		t.Fatal("Build rejected a valid generation")
	}
	route := idx.Routes[10]

	fwd := route.Directions[domain.DirectionForward].Polyline
	rev := route.Directions[domain.DirectionReverse].Polyline
	if len(fwd) != len(rev) {
		t.Fatalf("polyline length mismatch: fwd=%d rev=%d", len(fwd), len(rev))
	}
	for i := range fwd {
		if fwd[i] != rev[len(rev)-1-i] {
			t.Errorf("reverse polyline not a reversal at %d", i)
		}
	}
}

func TestRoutesByNumberIndexesCorrectly(t *testing.T) {
	b := NewBuilder(nil, nil)
	idx, ok := b.Build(context.Background(), 1, sampleRoutes(), sampleStops())
	if !ok {
		t.Fatal("Build rejected a valid generation")
	}

	matches := idx.RoutesByNumber("1")
	if len(matches) != 1 || matches[0].ID != 10 {
		t.Errorf("RoutesByNumber(1) = %+v, want [route 10]", matches)
	}
	if len(idx.RoutesByNumber("missing")) != 0 {
		t.Error("expected no matches for unknown number")
	}
}

func TestSortedStopDistancesOrdersByDistanceAlong(t *testing.T) {
	b := NewBuilder(nil, nil)
	idx, ok := b.Build(context.Background(), 1, sampleRoutes(), sampleStops())
	if !ok {
		t.Fatal("Build rejected a valid generation")
	}
	dg := idx.Routes[10].Directions[domain.DirectionForward]

	order := SortedStopDistances(&dg)
	if len(order) != 3 {
		t.Fatalf("got %d entries, want 3", len(order))
	}
	for i := 1; i < len(order); i++ {
		if dg.DistanceAlong[order[i]] < dg.DistanceAlong[order[i-1]] {
			t.Errorf("order not sorted: %v over distances %v", order, dg.DistanceAlong)
		}
	}
}

func TestBuildSingleStopDirectionSkipsGeometryFetch(t *testing.T) {
	b := NewBuilder(nil, nil)
	routes := []domain.Route{{ID: 20, Number: "2", Name: "Short", ForwardPath: []int{1}, ReversePath: nil}}
	idx, ok := b.Build(context.Background(), 1, routes, sampleStops())
	if !ok {
		t.Fatal("Build rejected a valid generation")
	}

	dg := idx.Routes[20].Directions[domain.DirectionForward]
	if len(dg.Stops) != 1 {
		t.Fatalf("got %d stops, want 1", len(dg.Stops))
	}
	if len(dg.Polyline) != 1 {
		t.Errorf("got %d polyline points, want 1", len(dg.Polyline))
	}
}
