package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/logger"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// HealthMonitor implements spec §4.9's health monitor: detects inactive
// discussions (>10 min idle), logs each one, and nudges it once: for
// free_form the least-recently-spoken agent, for turn-based strategies only
// the current-turn owner if that owner is an agent.
type HealthMonitor struct {
	interval            time.Duration
	inactivityThreshold time.Duration
	store               storage.Port
	eventBus            bus.EventBus
	strategies          func(*v1.Discussion) (turnstrategy.Strategy, error)
	logger              *logger.Logger

	mu      sync.Mutex
	nudged  map[string]bool // discussion id -> already nudged once for inactivity

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHealthMonitor constructs a HealthMonitor.
func NewHealthMonitor(interval, inactivityThreshold time.Duration, store storage.Port, eventBus bus.EventBus, strategyFor func(*v1.Discussion) (turnstrategy.Strategy, error), log *logger.Logger) *HealthMonitor {
	if log == nil {
		log = logger.Default()
	}
	return &HealthMonitor{
		interval:            interval,
		inactivityThreshold: inactivityThreshold,
		store:               store,
		eventBus:            eventBus,
		strategies:          strategyFor,
		logger:              log.WithFields(zap.String("component", "health_monitor")),
		nudged:              make(map[string]bool),
	}
}

func (h *HealthMonitor) Start(ctx context.Context) {
	h.stopCh = make(chan struct{})
	h.wg.Add(1)
	go h.loop(ctx)
}

func (h *HealthMonitor) Stop() {
	if h.stopCh != nil {
		close(h.stopCh)
	}
	h.wg.Wait()
}

func (h *HealthMonitor) loop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthMonitor) check(ctx context.Context) {
	discussions, err := h.store.SearchDiscussions(ctx, storage.SearchFilter{Status: v1.DiscussionStatusActive})
	if err != nil {
		h.logger.Error("failed to list active discussions", zap.Error(err))
		return
	}
	for _, d := range discussions {
		h.checkOne(ctx, d)
	}
}

func (h *HealthMonitor) checkOne(ctx context.Context, d *v1.Discussion) {
	if time.Since(d.State.LastActivity) > h.inactivityThreshold {
		h.handleInactive(ctx, d)
	}
}

func (h *HealthMonitor) handleInactive(ctx context.Context, d *v1.Discussion) {
	h.mu.Lock()
	already := h.nudged[d.ID]
	if !already {
		h.nudged[d.ID] = true
	}
	h.mu.Unlock()

	h.logger.Warn("discussion inactive", zap.String("discussion_id", d.ID), zap.Duration("idle", time.Since(d.State.LastActivity)))
	if already {
		return
	}

	agents, err := h.store.GetActiveParticipants(ctx, d.ID)
	if err != nil {
		h.logger.Error("failed to list active participants", zap.Error(err))
		return
	}
	agents = onlyAgents(agents)
	if len(agents) == 0 {
		return
	}

	var target *v1.Participant
	if d.TurnStrategy.Kind == v1.TurnStrategyFreeForm {
		target = leastRecentAgent(agents)
	} else if d.State.CurrentTurn.ParticipantID != "" {
		for _, a := range agents {
			if a.ID == d.State.CurrentTurn.ParticipantID {
				target = a
				break
			}
		}
	}
	if target == nil {
		return
	}

	data := map[string]interface{}{
		"discussionId":  d.ID,
		"agentId":       target.AgentID,
		"participantId": target.ID,
		"reason":        "health_monitor_inactivity_nudge",
	}
	if err := h.eventBus.Publish(ctx, TopicParticipate, bus.NewEvent("agent.participate", "health_monitor", data)); err != nil {
		h.logger.Error("failed to publish health-monitor nudge", zap.Error(err))
	}
}

// ClearNudge allows a discussion to be nudged again, used by the cleanup
// task once a discussion shows renewed activity.
func (h *HealthMonitor) ClearNudge(discussionID string) {
	h.mu.Lock()
	delete(h.nudged, discussionID)
	h.mu.Unlock()
}

func leastRecentAgent(agents []*v1.Participant) *v1.Participant {
	least := agents[0]
	for _, a := range agents[1:] {
		if a.LastMessageTime.Before(least.LastMessageTime) {
			least = a
		}
	}
	return least
}
