// Package orchestrator implements the Orchestrator (spec §4.8): the
// discussion lifecycle state machine, command dispatch, and periodic
// maintenance. Grounded on the teacher's orchestrator/service.go (Service
// struct shape: config/logger/eventBus/components as fields, NewService
// wiring order, Start/Stop running-flag-under-mutex) and
// orchestrator/controller.go (thin one-method-per-operation command
// surface) and agent/lifecycle/manager.go's cleanup-sweep pattern for the
// operation-lock orphan sweep.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/discussord/internal/apierrors"
	"github.com/kandev/discussord/internal/broadcast"
	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/cache"
	"github.com/kandev/discussord/internal/clock"
	"github.com/kandev/discussord/internal/logger"
	"github.com/kandev/discussord/internal/message"
	"github.com/kandev/discussord/internal/participant"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/trigger"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator is already running")
	ErrNotRunning     = errors.New("orchestrator is not running")
)

const (
	TopicDiscussionEvents = "discussion.events"
)

// Config holds orchestrator-owned tuning knobs.
type Config struct {
	Cache                cache.Config
	Trigger              trigger.Config
	OperationLockTimeout time.Duration
	OperationLockSweep   time.Duration
}

// DefaultConfig returns spec-derived defaults.
func DefaultConfig() Config {
	return Config{
		Cache:                cache.DefaultConfig(),
		OperationLockTimeout: 5 * time.Minute,
		OperationLockSweep:   time.Minute,
		Trigger:              trigger.DefaultConfig(),
	}
}

// operationLock serializes commands for one discussion using a buffered
// channel as the lock token, rather than a sync.Mutex, so the orphan sweep
// can read acquiredAt and force-clear a genuinely hung command without
// itself blocking on the hung goroutine's mutex (a real mutex can't be
// stolen from another goroutine; a map-entry swap can).
type operationLock struct {
	sem        chan struct{} // buffered 1; holds a token while unlocked
	acquiredAt atomic.Int64  // unix nano; 0 means not currently held
}

func newOperationLock() *operationLock {
	l := &operationLock{sem: make(chan struct{}, 1)}
	l.sem <- struct{}{}
	return l
}

// Orchestrator is the central coordinator: it owns the cached Discussion
// object exclusively, dispatches the full command surface, and runs the
// periodic trigger/health/cleanup loops.
type Orchestrator struct {
	cfg        Config
	logger     *logger.Logger
	store      storage.Port
	eventBus   bus.EventBus
	broadcaster *broadcast.Broadcaster
	timers     *clock.Registry
	cache      *cache.Cache
	participants *participant.Manager
	pipeline   *message.Pipeline
	triggerLoop *trigger.Trigger
	health     *trigger.HealthMonitor
	tracer     trace.Tracer

	opLocksMu sync.Mutex
	opLocks   map[string]*operationLock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	group   *errgroup.Group
}

// New wires up an Orchestrator from its collaborators.
func New(cfg Config, store storage.Port, eventBus bus.EventBus, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	svcLogger := log.WithFields(zap.String("component", "orchestrator"))

	timers := clock.NewRegistry()
	c := cache.New(store, timers, cfg.Cache.TTL, svcLogger)
	participants := participant.New(store)
	pipeline := message.New(c, store, participants)
	bcast := broadcast.New(svcLogger)

	o := &Orchestrator{
		cfg:          cfg,
		logger:       svcLogger,
		store:        store,
		eventBus:     eventBus,
		broadcaster:  bcast,
		timers:       timers,
		cache:        c,
		participants: participants,
		pipeline:     pipeline,
		tracer:       otel.Tracer("discussord/orchestrator"),
		opLocks:      make(map[string]*operationLock),
	}
	o.triggerLoop = trigger.New(cfg.Trigger, store, eventBus, o, o.strategyFor, svcLogger)
	o.health = trigger.NewHealthMonitor(cfg.Trigger.HealthCheckInterval, cfg.Trigger.InactivityThreshold, store, eventBus, o.strategyFor, svcLogger)
	return o
}

func (o *Orchestrator) strategyFor(d *v1.Discussion) (turnstrategy.Strategy, error) {
	return turnstrategy.New(d.TurnStrategy)
}

// Start begins the periodic participation/health/cleanup loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	sweep := o.cfg.Cache.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	o.cache.Start(ctx, sweep)

	// The three periodic loops (participation sweep, health monitor,
	// cleanup) are independent; an errgroup ties their goroutine
	// lifetimes to one cancellation without coupling their cadences.
	g, gctx := errgroup.WithContext(ctx)
	o.group = g
	g.Go(func() error {
		o.triggerLoop.Start(gctx)
		<-o.stopCh
		o.triggerLoop.Stop()
		return nil
	})
	g.Go(func() error {
		o.health.Start(gctx)
		<-o.stopCh
		o.health.Stop()
		return nil
	})
	g.Go(func() error {
		o.cleanupLoop(gctx)
		return nil
	})

	return nil
}

// Stop halts every periodic loop and waits for them to exit.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running = false
	close(o.stopCh)
	group := o.group
	o.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
	o.cache.Stop()
	return nil
}

// cleanupLoop scrubs stale per-agent dedup bookkeeping (every 10 min), sweeps
// orphaned operation locks (spec §5: locks older than 5 min are orphaned),
// and clears the health monitor's inactivity nudge for any discussion that
// has since shown renewed activity.
func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.OperationLockSweep)
	defer ticker.Stop()
	scrub := time.NewTicker(10 * time.Minute)
	defer scrub.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.sweepOrphanedLocks()
			o.clearRenewedNudges(ctx)
		case <-scrub.C:
			o.triggerLoop.ScrubStale(10 * time.Minute)
		}
	}
}

// clearRenewedNudges lets the health monitor re-nudge a discussion that
// previously sat idle long enough to be flagged, but has since resumed
// activity within the inactivity threshold.
func (o *Orchestrator) clearRenewedNudges(ctx context.Context) {
	active, err := o.store.SearchDiscussions(ctx, storage.SearchFilter{Status: v1.DiscussionStatusActive})
	if err != nil {
		o.logger.Error("failed to list active discussions for nudge clearing", zap.Error(err))
		return
	}
	threshold := o.cfg.Trigger.InactivityThreshold
	for _, d := range active {
		if time.Since(d.State.LastActivity) < threshold {
			o.health.ClearNudge(d.ID)
		}
	}
}

// sweepOrphanedLocks reads acquiredAt lock-free and, for a lock held past
// the timeout, drops the map entry rather than waiting on it: a new command
// for that discussion id gets a fresh, unlocked operationLock immediately.
// The stale goroutine (if it ever returns) still holds and releases its own
// orphaned lock object harmlessly; it no longer blocks anyone else.
func (o *Orchestrator) sweepOrphanedLocks() {
	cutoff := time.Now().Add(-o.cfg.OperationLockTimeout)
	o.opLocksMu.Lock()
	defer o.opLocksMu.Unlock()
	for id, lock := range o.opLocks {
		at := lock.acquiredAt.Load()
		if at != 0 && time.Unix(0, at).Before(cutoff) {
			o.logger.Warn("clearing orphaned operation lock", zap.String("discussion_id", id))
			delete(o.opLocks, id)
		}
	}
}

// withOperationLock serializes sendMessage/advanceTurn/lifecycle
// transitions per discussion id (spec §5 operationLocks[discussionId]).
func (o *Orchestrator) withOperationLock(discussionID string, fn func() (*v1.Result, error)) (*v1.Result, error) {
	o.opLocksMu.Lock()
	lock, ok := o.opLocks[discussionID]
	if !ok {
		lock = newOperationLock()
		o.opLocks[discussionID] = lock
	}
	o.opLocksMu.Unlock()

	<-lock.sem
	lock.acquiredAt.Store(time.Now().UnixNano())
	defer func() {
		lock.acquiredAt.Store(0)
		lock.sem <- struct{}{}
	}()

	return fn()
}

// CleanUp runs the cleanup() command, forcing an immediate orphan-lock
// sweep and bookkeeping scrub.
func (o *Orchestrator) CleanUp(ctx context.Context) error {
	o.sweepOrphanedLocks()
	o.triggerLoop.ScrubStale(10 * time.Minute)
	return nil
}

// GetStatus reports the Orchestrator's running state and the number of
// active discussions. TotalTriggered, TotalCompleted and UptimeSeconds are
// not populated and stay zero.
func (o *Orchestrator) GetStatus(ctx context.Context) (v1.Status, error) {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	active, err := o.store.SearchDiscussions(ctx, storage.SearchFilter{Status: v1.DiscussionStatusActive})
	if err != nil {
		return v1.Status{}, apierrors.StoreError(err)
	}
	return v1.Status{Running: running, ActiveDiscussions: len(active)}, nil
}

// Subscribe registers a live subscriber for discussionID's events (used by
// the out-of-scope transport layer to receive a channel of Events).
func (o *Orchestrator) Subscribe(ctx context.Context, discussionID string) (<-chan *v1.Event, string) {
	return o.broadcaster.Subscribe(ctx, discussionID)
}

func (o *Orchestrator) emit(ctx context.Context, event *v1.Event) {
	o.broadcaster.Broadcast(event.DiscussionID, event)

	data := map[string]interface{}{
		"id":           event.ID,
		"type":         string(event.Type),
		"discussionId": event.DiscussionID,
		"data":         event.Data,
		"timestamp":    event.Timestamp,
	}
	busEvent := bus.NewEvent(string(event.Type), "orchestrator", data)
	busEvent.ID = event.ID
	if err := o.eventBus.Publish(ctx, TopicDiscussionEvents, busEvent); err != nil {
		// Bus errors during event emission are logged but never fail the command.
		o.logger.Error("failed to publish event to bus", zap.String("event_id", event.ID), zap.Error(err))
	}
}
