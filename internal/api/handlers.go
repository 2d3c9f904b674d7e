package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/empsgit/tram-monitor-ekb/domain"
	"github.com/empsgit/tram-monitor-ekb/internal/atlas"
	"github.com/empsgit/tram-monitor-ekb/internal/geo"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.initialized() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	idx := s.atlasHolder.Get()
	if idx == nil {
		writeJSON(w, http.StatusOK, []RouteSummary{})
		return
	}

	out := make([]RouteSummary, 0, len(idx.Routes))
	for _, route := range idx.Routes {
		fwd := route.Directions[domain.DirectionForward]
		out = append(out, RouteSummary{
			ID:       route.ID,
			Number:   route.Number,
			Name:     route.Name,
			Color:    route.Color,
			StopIDs:  route.StopIDs(),
			Geometry: toLatLonPairs(fwd.Polyline),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}

	idx := s.atlasHolder.Get()
	if idx == nil {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}
	route, ok := idx.Routes[id]
	if !ok {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}

	detail := RouteDetail{ID: route.ID, Number: route.Number, Name: route.Name, Color: route.Color}
	for dir := 0; dir < 2; dir++ {
		dg := route.Directions[dir]
		ds := DirectionStops{Direction: dir, LengthM: dg.Length}
		for i, stop := range dg.Stops {
			ds.Stops = append(ds.Stops, StopDetail{
				ID: stop.ID, Name: stop.Name, Lat: stop.Lat, Lon: stop.Lon,
				DistanceAlong: dg.DistanceAlong[i],
			})
		}
		detail.Directions = append(detail.Directions, ds)
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleListStops(w http.ResponseWriter, r *http.Request) {
	idx := s.atlasHolder.Get()
	if idx == nil {
		writeJSON(w, http.StatusOK, []StopSummary{})
		return
	}

	seen := map[int]bool{}
	out := []StopSummary{}
	for _, route := range idx.Routes {
		for _, dg := range route.Directions {
			for _, stop := range dg.Stops {
				if seen[stop.ID] {
					continue
				}
				seen[stop.ID] = true
				out = append(out, StopSummary{ID: stop.ID, Name: stop.Name, Lat: stop.Lat, Lon: stop.Lon, Direction: stop.Direction})
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	table := s.tracker.Current()
	out := make([]domain.VehicleState, 0, len(table.Vehicles))
	for _, v := range table.Vehicles {
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := s.tracker.Current()
	v, ok := table.Vehicles[id]
	if !ok {
		writeError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	table := s.tracker.Current()
	idx := s.atlasHolder.Get()

	diag := Diagnostics{
		VehiclesMatched:   table.Diagnostics.VehiclesMatched,
		VehiclesUnmatched: table.Diagnostics.VehiclesUnmatched,
		PerRoute:          table.Diagnostics.PerRoute,
		GeneratedAt:       table.Diagnostics.GeneratedAt,
		Subscribers:       s.broadcaster.SubscriberCount(),
	}
	if idx != nil {
		diag.AtlasGenerationID = idx.GenerationID
		diag.AtlasBuiltAt = idx.BuiltAt
		diag.AtlasRouteCount = len(idx.Routes)
	}
	writeJSON(w, http.StatusOK, diag)
}

// handleStopArrivals implements arrivalsAt from spec.md §4.10: Tier 1 scans
// VehicleStates whose next_stops include stopId; Tier 2 falls back to a
// haversine-distance estimate for routes serving the stop that had no
// Tier-1 hit.
func (s *Server) handleStopArrivals(w http.ResponseWriter, r *http.Request) {
	stopID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stop id")
		return
	}
	routeFilter := r.URL.Query().Get("route")

	idx := s.atlasHolder.Get()
	table := s.tracker.Current()

	stopName := ""
	servingRoutes := map[int]bool{}
	if idx != nil {
		for _, route := range idx.Routes {
			if routeFilter != "" && route.Number != routeFilter {
				continue
			}
			for _, dg := range route.Directions {
				for _, stop := range dg.Stops {
					if stop.ID == stopID {
						stopName = stop.Name
						servingRoutes[route.ID] = true
					}
				}
			}
		}
	}

	arrivals := []Arrival{}
	tier1Vehicles := map[string]bool{}

	for _, v := range table.Vehicles {
		if routeFilter != "" && v.RouteNumber != routeFilter {
			continue
		}
		for _, next := range v.NextStops {
			if next.ID == stopID {
				arrivals = append(arrivals, Arrival{
					VehicleID: v.DeviceID, BoardNum: v.BoardNumber, Route: v.RouteNumber,
					RouteID: v.RouteID, ETASeconds: next.ETASeconds,
				})
				tier1Vehicles[v.DeviceID] = true
				if v.RouteID != nil {
					delete(servingRoutes, *v.RouteID)
				}
				break
			}
		}
	}

	// Tier 2 runs per route, not only when Tier 1 found nothing at all: a
	// stop served by routes A and B can have a Tier-1 hit from A while B
	// still needs the haversine fallback. Routes with a Tier-1 hit were
	// removed from servingRoutes above, so only routes without one remain.
	if len(servingRoutes) > 0 {
		lat, lon := findStopCoordinates(idx, stopID)
		arrivals = append(arrivals, tier2Arrivals(table.Vehicles, servingRoutes, lat, lon, tier1Vehicles)...)
	}

	writeJSON(w, http.StatusOK, StopArrivals{StopID: stopID, StopName: stopName, Arrivals: arrivals})
}

func findStopCoordinates(idx *atlas.Index, stopID int) (lat, lon float64) {
	if idx == nil {
		return 0, 0
	}
	for _, route := range idx.Routes {
		for _, dg := range route.Directions {
			for _, stop := range dg.Stops {
				if stop.ID == stopID {
					return stop.Lat, stop.Lon
				}
			}
		}
	}
	return 0, 0
}

func toLatLonPairs(poly []domain.LatLon) [][]float64 {
	out := make([][]float64, len(poly))
	for i, p := range poly {
		out[i] = []float64{p.Lat, p.Lon}
	}
	return out
}

func tier2Arrivals(vehicles map[string]domain.VehicleState, servingRoutes map[int]bool, stopLat, stopLon float64, exclude map[string]bool) []Arrival {
	const horizonSec = 3600.0
	var out []Arrival
	for _, v := range vehicles {
		if exclude[v.DeviceID] {
			continue
		}
		if v.RouteID == nil || !servingRoutes[*v.RouteID] {
			continue
		}
		dist := geo.Haversine(v.Lat, v.Lon, stopLat, stopLon)
		effSpeed := v.SpeedKMH
		if effSpeed < 5.0 {
			effSpeed = 5.0
		}
		etaSec := dist / (effSpeed / 3.6)
		if etaSec > horizonSec {
			continue
		}
		eta := int(etaSec)
		out = append(out, Arrival{
			VehicleID: v.DeviceID, BoardNum: v.BoardNumber, Route: v.RouteNumber,
			RouteID: v.RouteID, ETASeconds: &eta,
		})
	}
	return out
}
