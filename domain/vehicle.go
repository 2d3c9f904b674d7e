package domain

import "time"

// RawVehicle is one board reading from the source API, before any
// enrichment.
type RawVehicle struct {
	DeviceID    string
	BoardNumber string
	RouteNumber string
	RouteID     *int // optional hint from the source, may be absent or stale
	Lat         float64
	Lon         float64
	SpeedKMH    float64
	CourseDeg   float64
	Timestamp   time.Time
}

// NextStopETA is one upcoming stop in a VehicleState, with its
// pre-computed ETA (nil when the horizon cap or another rule suppresses it).
type NextStopETA struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ETASeconds *int   `json:"eta_seconds"`
}

// VehicleState is the enriched, per-tick snapshot of one tram held in the
// tracker's state table and sent to clients.
type VehicleState struct {
	DeviceID    string `json:"id"`
	BoardNumber string `json:"board_num"`
	RouteNumber string `json:"route"`
	RouteID     *int   `json:"route_id"`

	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	Direction     *int     `json:"-"`
	Progress      *float64 `json:"progress"`
	DistanceAlong *float64 `json:"-"`

	PrevStop  *StopRef      `json:"prev_stop"`
	NextStops []NextStopETA `json:"next_stops"`

	SpeedKMH  float64 `json:"speed"`
	CourseDeg float64 `json:"course"`

	Timestamp  *time.Time `json:"timestamp"`
	SignalLost bool       `json:"signal_lost"`

	// SnapshotID correlates this row with the tick that produced it, for
	// the optional persistence writer. Not serialized to clients.
	SnapshotID string `json:"-"`
}
