// Package scheduler implements C11: the two polling loops that drive
// everything else. Grounded directly on the teacher's cmd/poller/main.go
// (an immediate first run, a fast real-time ticker, a slow static-refresh
// ticker, both selecting on ctx.Done for shutdown).
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
	"github.com/empsgit/tram-monitor-ekb/internal/atlas"
	"github.com/empsgit/tram-monitor-ekb/internal/broadcast"
	"github.com/empsgit/tram-monitor-ekb/internal/sourceclient"
	"github.com/empsgit/tram-monitor-ekb/internal/tracker"
)

// Persister is implemented by the optional Postgres writer (A3). It is
// never on the hot path's critical section: Scheduler calls it after
// publishing the tick, and a slow or failing store only logs, never stalls
// the next poll.
type Persister interface {
	WriteTick(ctx context.Context, snapshotID string, vehicles []domain.VehicleState, matched, unmatched int, generatedAt time.Time) error
}

// Config bundles the interval tunables read from the environment.
type Config struct {
	PollInterval     time.Duration
	RouteRefresh     time.Duration
	MaxSnapDistanceM float64
}

// Scheduler owns the fast (vehicle poll) and slow (route refresh) loops.
type Scheduler struct {
	cfg Config

	source      *sourceclient.Client
	builder     *atlas.Builder
	atlasHolder *atlas.Holder
	tracker     *tracker.Tracker
	broadcaster *broadcast.Broadcaster
	store       Persister
	log         *zap.Logger

	generationID int
}

// New builds a Scheduler. store may be nil when DATABASE_URL is unset.
func New(cfg Config, source *sourceclient.Client, builder *atlas.Builder, atlasHolder *atlas.Holder, trk *tracker.Tracker, bc *broadcast.Broadcaster, store Persister, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		source:      source,
		builder:     builder,
		atlasHolder: atlasHolder,
		tracker:     trk,
		broadcaster: bc,
		store:       store,
		log:         log,
	}
}

// Run performs an initial route build and vehicle poll, then starts both
// loops. It blocks until ctx is cancelled, mirroring the teacher's
// main-goroutine shutdown wait.
func (s *Scheduler) Run(ctx context.Context) {
	s.refreshRoutes(ctx)
	s.pollVehicles(ctx)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	refreshTicker := time.NewTicker(s.cfg.RouteRefresh)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			s.pollVehicles(ctx)
		case <-refreshTicker.C:
			s.refreshRoutes(ctx)
		}
	}
}

// refreshRoutes runs C1's route/point fetch followed by C2–C4's atlas
// build, installing the result only when Build reports ok, per spec.md
// §7's non-monotone-cumulative invariant.
func (s *Scheduler) refreshRoutes(ctx context.Context) {
	routes, err := s.source.FetchRoutes(ctx)
	if err != nil {
		s.logErr("fetch routes", err)
		return
	}
	stops, err := s.source.FetchPoints(ctx)
	if err != nil {
		s.logErr("fetch points", err)
		return
	}

	s.generationID++
	idx, ok := s.builder.Build(ctx, s.generationID, routes, stops)
	if !ok {
		// Builder already logged the invariant violation. Previous
		// generation, if any, stays installed.
		s.generationID--
		return
	}
	s.atlasHolder.Set(idx)
	if s.log != nil {
		s.log.Info("atlas generation installed",
			zap.Int("generation_id", idx.GenerationID), zap.Int("route_count", len(idx.Routes)))
	}
}

// pollVehicles runs one fast-loop tick: fetch, match/enrich, publish, and
// (optionally) persist.
func (s *Scheduler) pollVehicles(ctx context.Context) {
	raws, err := s.source.FetchVehicles(ctx)
	if err != nil {
		s.logErr("fetch vehicles", err)
		return
	}

	now := time.Now().UTC()
	idx := s.atlasHolder.Get()
	produced := s.tracker.Tick(now, raws, idx)

	snapshotID := uuid.NewString()
	for i := range produced {
		produced[i].SnapshotID = snapshotID
	}

	s.broadcaster.Publish(produced)

	if s.store != nil {
		table := s.tracker.Current()
		go func() {
			storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.store.WriteTick(storeCtx, snapshotID, produced, table.Diagnostics.VehiclesMatched, table.Diagnostics.VehiclesUnmatched, now); err != nil {
				s.logErr("persist tick", err)
			}
		}()
	}
}

func (s *Scheduler) logErr(op string, err error) {
	if s.log != nil {
		s.log.Error("scheduler: "+op+" failed", zap.Error(err))
	}
}
