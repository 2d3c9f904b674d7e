// Package store implements A3, the optional persistence writer: when
// DATABASE_URL is configured it records one row per VehicleState per tick
// to vehicle_history, plus one row per tick to tick_diagnostics, for
// historical analysis outside the hot path. Grounded on the teacher's
// apps/api/repository/postgres.go for pool construction and tuning, and on
// apps/poller/internal/db/sqlite.go's EnsureSchema pattern for schema setup
// (CREATE TABLE IF NOT EXISTS, called once at startup before the scheduler
// runs).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

// Store wraps a Postgres connection pool used only by A3's writer. It is
// never consulted on the read path: C10 always serves from the in-memory
// atlas/tracker, per spec.md §4.10.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Connect opens a pool against databaseURL and verifies connectivity with a
// Ping, mirroring the teacher's NewTrainRepository.
func Connect(ctx context.Context, databaseURL string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables this writer needs if they don't already
// exist, mirroring the teacher's EnsureSchema called once at startup ahead
// of the poll loop.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicle_history (
		snapshot_id     TEXT NOT NULL,
		device_id       TEXT NOT NULL,
		board_num       TEXT,
		route_number    TEXT,
		route_id        INTEGER,
		lat             DOUBLE PRECISION,
		lon             DOUBLE PRECISION,
		direction       INTEGER,
		progress        DOUBLE PRECISION,
		prev_stop_id    INTEGER,
		speed_kmh       DOUBLE PRECISION,
		course_deg      DOUBLE PRECISION,
		vehicle_ts      TIMESTAMPTZ,
		signal_lost     BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (snapshot_id, device_id)
	);
	CREATE INDEX IF NOT EXISTS idx_vehicle_history_device ON vehicle_history(device_id, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS tick_diagnostics (
		snapshot_id        TEXT PRIMARY KEY,
		vehicles_matched   INTEGER NOT NULL,
		vehicles_unmatched INTEGER NOT NULL,
		generated_at       TIMESTAMPTZ NOT NULL,
		recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// WriteTick persists one tick's worth of vehicle rows plus its diagnostics
// row, batched in a single transaction so a partial failure never leaves
// vehicle_history and tick_diagnostics disagreeing about a snapshot.
func (s *Store) WriteTick(ctx context.Context, snapshotID string, vehicles []domain.VehicleState, matched, unmatched int, generatedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range vehicles {
		var direction, routeID, prevStopID *int
		var progress *float64
		if v.Direction != nil {
			direction = v.Direction
		}
		if v.RouteID != nil {
			routeID = v.RouteID
		}
		if v.PrevStop != nil {
			id := v.PrevStop.ID
			prevStopID = &id
		}
		if v.Progress != nil {
			progress = v.Progress
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO vehicle_history (
				snapshot_id, device_id, board_num, route_number, route_id,
				lat, lon, direction, progress, prev_stop_id,
				speed_kmh, course_deg, vehicle_ts, signal_lost
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (snapshot_id, device_id) DO NOTHING
		`,
			snapshotID, v.DeviceID, v.BoardNumber, v.RouteNumber, routeID,
			v.Lat, v.Lon, direction, progress, prevStopID,
			v.SpeedKMH, v.CourseDeg, v.Timestamp, v.SignalLost,
		)
		if err != nil {
			return fmt.Errorf("insert vehicle_history row for %s: %w", v.DeviceID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tick_diagnostics (snapshot_id, vehicles_matched, vehicles_unmatched, generated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (snapshot_id) DO NOTHING
	`, snapshotID, matched, unmatched, generatedAt)
	if err != nil {
		return fmt.Errorf("insert tick_diagnostics row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
