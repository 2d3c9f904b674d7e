// Package tracker implements C8, the vehicle tracker: the per-tick
// orchestration of match → stop detection → ETA, and the single-writer
// state table those results are upserted into. Grounded on the teacher's
// cleanupRunning atomic.Bool CAS pattern in cmd/poller/main.go, generalized
// from a single flag guarding one cleanup run to a whole table published by
// atomic pointer swap.
package tracker

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
	"github.com/empsgit/tram-monitor-ekb/internal/atlas"
	"github.com/empsgit/tram-monitor-ekb/internal/eta"
	"github.com/empsgit/tram-monitor-ekb/internal/match"
	"github.com/empsgit/tram-monitor-ekb/internal/stops"
)

// Diagnostics holds the per-tick counters spec.md §4.8 requires.
type Diagnostics struct {
	VehiclesMatched   int            `json:"vehicles_matched"`
	VehiclesUnmatched int            `json:"vehicles_unmatched"`
	PerRoute          map[string]int `json:"per_route"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Table is one immutable generation of the state table: every currently
// tracked vehicle, keyed by device ID, plus the diagnostics from the tick
// that produced it.
type Table struct {
	Vehicles    map[string]domain.VehicleState
	Diagnostics Diagnostics
}

// Config bundles the tunables the tracker needs from the environment.
type Config struct {
	MaxSnapDistanceM float64
	VehicleTTL       time.Duration
	SignalLostAfter  time.Duration
}

// Tracker owns the state table: one fast-loop goroutine calls Tick; any
// number of readers (C9, C10) call Current concurrently.
type Tracker struct {
	cfg   Config
	log   *zap.Logger
	table atomic.Pointer[Table]
}

// New builds a Tracker with an empty initial table.
func New(cfg Config, log *zap.Logger) *Tracker {
	t := &Tracker{cfg: cfg, log: log}
	t.table.Store(&Table{Vehicles: map[string]domain.VehicleState{}})
	return t
}

// Current returns the most recently published table. Safe for concurrent
// use; the returned value is immutable.
func (t *Tracker) Current() *Table {
	return t.table.Load()
}

// Tick runs one polling cycle: match, detect, estimate, and upsert every
// raw vehicle against idx, then evict stale entries and publish the new
// table. It returns the set of vehicles produced by this tick (for C9's
// `update` frame) — vehicles persisting from a prior tick that were not
// re-observed are not included, per spec.md §4.8.
func (t *Tracker) Tick(now time.Time, raws []domain.RawVehicle, idx *atlas.Index) []domain.VehicleState {
	prev := t.table.Load()
	next := make(map[string]domain.VehicleState, len(prev.Vehicles)+len(raws))
	for k, v := range prev.Vehicles {
		next[k] = v
	}

	diag := Diagnostics{PerRoute: map[string]int{}, GeneratedAt: now}
	produced := make([]domain.VehicleState, 0, len(raws))

	for _, raw := range raws {
		state := t.process(raw, now, idx)
		next[raw.DeviceID] = state
		produced = append(produced, state)

		if state.RouteID != nil {
			diag.VehiclesMatched++
		} else {
			diag.VehiclesUnmatched++
		}
		diag.PerRoute[raw.RouteNumber]++
	}

	t.evictStale(next, now)

	t.table.Store(&Table{Vehicles: next, Diagnostics: diag})
	return produced
}

// process runs C5→C6→C7 for one raw observation, per spec.md §4.8 steps 1-3.
func (t *Tracker) process(raw domain.RawVehicle, now time.Time, idx *atlas.Index) domain.VehicleState {
	ts := raw.Timestamp
	state := domain.VehicleState{
		DeviceID:    raw.DeviceID,
		BoardNumber: raw.BoardNumber,
		RouteNumber: raw.RouteNumber,
		Lat:         raw.Lat,
		Lon:         raw.Lon,
		SpeedKMH:    raw.SpeedKMH,
		CourseDeg:   raw.CourseDeg,
		Timestamp:   &ts,
		SignalLost:  now.Sub(ts) > t.cfg.SignalLostAfter,
	}

	if idx == nil {
		return state
	}

	candidates := idx.RoutesByNumber(raw.RouteNumber)
	if len(candidates) == 0 {
		return state
	}

	result, ok := match.Match(raw, candidates, t.cfg.MaxSnapDistanceM)
	if !ok {
		return state
	}

	route := idx.Routes[result.RouteID]
	dg := &route.Directions[result.Direction]
	order := atlas.SortedStopDistances(dg)
	prevStop, nextStops, nextDistances := stops.Detect(dg, order, result.DistanceAlong)

	for i := range nextStops {
		remaining := nextDistances[i] - result.DistanceAlong
		nextStops[i].ETASeconds = eta.Compute(remaining, raw.SpeedKMH)
	}

	routeID := result.RouteID
	direction := result.Direction
	progress := result.Progress
	distanceAlong := result.DistanceAlong

	state.RouteID = &routeID
	state.Lat = result.SnappedLat
	state.Lon = result.SnappedLon
	state.Direction = &direction
	state.Progress = &progress
	state.DistanceAlong = &distanceAlong
	state.PrevStop = prevStop
	state.NextStops = nextStops

	return state
}

// evictStale removes vehicles whose source timestamp is older than the
// configured TTL, per spec.md §4.8.
func (t *Tracker) evictStale(table map[string]domain.VehicleState, now time.Time) {
	for id, v := range table {
		if v.Timestamp != nil && now.Sub(*v.Timestamp) > t.cfg.VehicleTTL {
			delete(table, id)
		}
	}
}
