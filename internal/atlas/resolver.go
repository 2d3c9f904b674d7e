// Package atlas builds the route index (C4) from raw routes and the points
// catalog: resolving stop paths (C2), fetching street-following geometry
// (C3), and assembling the linear-referencing tables consumed by the
// matcher. Grounded on the teacher's schedule.Queries (raw rows in, typed
// joined rows out) for the resolver, and metro.Poller's geometry loading
// for the index builder.
package atlas

import "github.com/empsgit/tram-monitor-ekb/domain"

// ResolveDirection joins a direction's stop-ID path against the points
// catalog, per spec.md §4.2. IDs absent from the catalog are dropped and
// recorded as UnresolvedIDs. Stops with an empty name or inactive status
// are still placed into the sequence (their coordinates are still usable
// for geometry) but counted as UnnamedCount.
func ResolveDirection(path []int, catalog map[int]domain.Stop) domain.DirectionGeometry {
	var dg domain.DirectionGeometry
	for _, id := range path {
		stop, ok := catalog[id]
		if !ok {
			dg.UnresolvedIDs = append(dg.UnresolvedIDs, id)
			continue
		}
		if stop.Name == "" || !stop.Active {
			dg.UnnamedCount++
		}
		dg.Stops = append(dg.Stops, stop)
	}
	return dg
}

// BuildPointsCatalog indexes a stop list by ID for resolver lookups.
func BuildPointsCatalog(stops []domain.Stop) map[int]domain.Stop {
	catalog := make(map[int]domain.Stop, len(stops))
	for _, s := range stops {
		catalog[s.ID] = s
	}
	return catalog
}
