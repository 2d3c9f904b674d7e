// Package api implements C10, the read-only query surface: a chi router
// serving spec.md §6's REST endpoints plus a persistent /ws/vehicles
// subscription. Grounded on the teacher's handlers.TrainHandler
// (interface-typed dependency, ErrorResponse envelope, explicit
// Content-Type/status discipline) for REST, and on this pack's
// drobiAlex-wabus-backend manifest (coder/websocket in a real-time transit
// backend) for the WebSocket endpoint.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/internal/atlas"
	"github.com/empsgit/tram-monitor-ekb/internal/broadcast"
	"github.com/empsgit/tram-monitor-ekb/internal/tracker"
)

// Server wires the atlas and tracker into HTTP handlers. All reads go
// through atlasHolder/tracker; the API never calls the source client
// inline, per spec.md §4.10.
type Server struct {
	atlasHolder *atlas.Holder
	tracker     *tracker.Tracker
	broadcaster *broadcast.Broadcaster
	log         *zap.Logger

	snapshotMaxAge time.Duration
}

// New builds a Server. Call Router with the allowed CORS origins to get
// the http.Handler to serve.
func New(atlasHolder *atlas.Holder, trk *tracker.Tracker, bc *broadcast.Broadcaster, snapshotMaxAge time.Duration, log *zap.Logger) *Server {
	return &Server{
		atlasHolder:    atlasHolder,
		tracker:        trk,
		broadcaster:    bc,
		snapshotMaxAge: snapshotMaxAge,
		log:            log,
	}
}

// Router builds the chi router with every route from spec.md §6.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/routes", s.handleListRoutes)
	r.Get("/api/routes/{id}", s.handleGetRoute)
	r.Get("/api/stops", s.handleListStops)
	r.Get("/api/stops/{id}/arrivals", s.handleStopArrivals)
	r.Get("/api/vehicles", s.handleListVehicles)
	r.Get("/api/vehicles/{id}", s.handleGetVehicle)
	r.Get("/api/diagnostics", s.handleDiagnostics)
	r.Get("/ws/vehicles", s.handleWebSocket)

	return r
}

// initialized reports whether there is anything useful to serve, per
// spec.md §7's 503 rule: "only if neither state nor catalog is
// initialized."
func (s *Server) initialized() bool {
	idx := s.atlasHolder.Get()
	table := s.tracker.Current()
	return idx != nil || (table != nil && len(table.Vehicles) > 0)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
