// Package main is the wiring/demo entry point for the Discussion
// Orchestration Core. It builds the core's collaborators — config, logger,
// event bus, storage port — and starts the Orchestrator's periodic loops.
// HTTP/WebSocket transport, auth, and persistent storage are explicitly
// out of scope (spec §1); this binary only demonstrates wiring, using the
// in-memory storage port and either the in-memory or NATS event bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/config"
	"github.com/kandev/discussord/internal/logger"
	"github.com/kandev/discussord/internal/orchestrator"
	"github.com/kandev/discussord/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("DISCUSSORD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting discussord")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eventBus, busCleanup, err := provideEventBus(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()

	store := storage.NewMemoryPort()

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Cache.TTL = cfg.Cache.TTL
	orchCfg.Cache.SweepInterval = cfg.Cache.SweepInterval
	orchCfg.OperationLockTimeout = cfg.Orchestrator.OperationLockTimeout
	orchCfg.OperationLockSweep = cfg.Orchestrator.OperationLockSweep
	orchCfg.Trigger.SweepInterval = cfg.Trigger.SweepInterval
	orchCfg.Trigger.HealthCheckInterval = cfg.Trigger.HealthCheckInterval
	orchCfg.Trigger.InactivityThreshold = cfg.Trigger.InactivityThreshold
	orchCfg.Trigger.DiscussionRateLimit = cfg.Trigger.DiscussionRateLimit
	orchCfg.Trigger.AgentDedupWindow = cfg.Trigger.AgentDedupWindow
	orchCfg.Trigger.RetriggerDampener = cfg.Trigger.RetriggerDampener
	orchCfg.Trigger.RecentContextLimit = cfg.Trigger.RecentContextLimit

	orch := orchestrator.New(orchCfg, store, eventBus, log)
	if err := orch.Start(ctx); err != nil {
		log.Fatal("failed to start orchestrator", zap.Error(err))
	}

	log.Info("discussord ready")
	<-ctx.Done()

	log.Info("shutting down discussord")
	if err := orch.Stop(); err != nil {
		log.Error("error stopping orchestrator", zap.Error(err))
	}
}

// provideEventBus picks the NATS adapter when a URL is configured and falls
// back to the in-memory adapter otherwise, mirroring the teacher's
// per-concern provideX(cfg, log) (X, cleanup, error) wiring convention.
func provideEventBus(cfg config.Config, log *logger.Logger) (bus.EventBus, func(), error) {
	if cfg.NATS.URL == "" {
		b := bus.NewMemoryEventBus(log)
		return b, func() { _ = b.Close() }, nil
	}

	b, err := bus.NewNATSEventBus(cfg.NATS, log)
	if err != nil {
		log.Warn("failed to connect to NATS, falling back to in-memory bus", zap.Error(err))
		mb := bus.NewMemoryEventBus(log)
		return mb, func() { _ = mb.Close() }, nil
	}
	return b, func() { _ = b.Close() }, nil
}
