// Command server wires the atlas, tracker, broadcaster, and query API into
// a running process. Phased startup mirrors the teacher's cmd/poller/main.go:
// load config, init logger, init optional stores, build the initial atlas,
// start the polling loops, wait for a signal, shut down.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/internal/api"
	"github.com/empsgit/tram-monitor-ekb/internal/atlas"
	"github.com/empsgit/tram-monitor-ekb/internal/broadcast"
	"github.com/empsgit/tram-monitor-ekb/internal/config"
	"github.com/empsgit/tram-monitor-ekb/internal/fanout"
	"github.com/empsgit/tram-monitor-ekb/internal/logging"
	"github.com/empsgit/tram-monitor-ekb/internal/scheduler"
	"github.com/empsgit/tram-monitor-ekb/internal/sourceclient"
	"github.com/empsgit/tram-monitor-ekb/internal/store"
	"github.com/empsgit/tram-monitor-ekb/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	var log *zap.Logger
	var err error
	if os.Getenv("ENV") == "production" {
		log, err = logging.New()
	} else {
		log, err = logging.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting tram monitor",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("route_refresh", cfg.RouteRefresh))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Optional persistence writer (A3) ──────────────────────────────
	var persister scheduler.Persister
	if cfg.DatabaseURL != "" {
		pgStore, err := store.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatal("failed to ensure database schema", zap.Error(err))
		}
		persister = pgStore
		log.Info("persistence writer enabled")
	}

	// ── Optional Redis fan-out bridge (A4) ─────────────────────────────
	var mirror broadcast.Mirror
	if cfg.RedisURL != "" {
		bridge, err := fanout.Connect(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer bridge.Close()
		mirror = bridge
		log.Info("redis fan-out enabled")
	}

	// ── Core components ─────────────────────────────────────────────
	source := sourceclient.New(cfg.ETTUBaseURL, cfg.ETTUAPIKey, log)
	geometry := atlas.NewGeometryFetcher(cfg.OSRMBaseURL, log)
	builder := atlas.NewBuilder(geometry, log)
	atlasHolder := &atlas.Holder{}
	trk := tracker.New(tracker.Config{
		MaxSnapDistanceM: cfg.MaxSnapDistanceM,
		VehicleTTL:       cfg.VehicleTTL,
		SignalLostAfter:  cfg.SignalLostAfter,
	}, log)
	bc := broadcast.New(cfg.MaxBufferedFrames, cfg.SnapshotMaxAge, mirror)

	sched := scheduler.New(scheduler.Config{
		PollInterval:     cfg.PollInterval,
		RouteRefresh:     cfg.RouteRefresh,
		MaxSnapDistanceM: cfg.MaxSnapDistanceM,
	}, source, builder, atlasHolder, trk, bc, persister, log)

	go sched.Run(ctx)

	srv := api.New(atlasHolder, trk, bc, cfg.SnapshotMaxAge, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(cfg.AllowedOrigins),
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
}
