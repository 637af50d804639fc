// Package trigger implements the Participation Trigger (spec §4.9): a
// periodic sweeper that decides which agent to nudge next, enforcing a
// per-discussion rate limit and a per-(agent,participant) dedup window.
// Grounded on the teacher's scheduler.processLoop ticker+retry bookkeeping,
// generalized from task-retry to participation-nudge rate limiting. The
// per-discussion rate limit uses golang.org/x/time/rate (see SPEC_FULL §11);
// the per-(agent,participant) dedup window is a last-trigger timestamp map.
package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/logger"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

const (
	TopicParticipate = "agent.discussion.participate"
)

// Config controls the trigger's cadence and limits.
type Config struct {
	SweepInterval       time.Duration
	DiscussionRateLimit time.Duration
	AgentDedupWindow    time.Duration
	RetriggerDampener   time.Duration
	RecentContextLimit  int
	HealthCheckInterval time.Duration
	InactivityThreshold time.Duration
}

// DefaultConfig returns the spec's defaults (5s sweep, 30s/2min limits).
func DefaultConfig() Config {
	return Config{
		SweepInterval:       5 * time.Second,
		DiscussionRateLimit: 30 * time.Second,
		AgentDedupWindow:    2 * time.Minute,
		RetriggerDampener:   5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		InactivityThreshold: 10 * time.Minute,
		RecentContextLimit:  20,
	}
}

// Completer transitions a discussion to completed when the message cap is
// crossed (spec §4.9 step 2). Implemented by the Orchestrator.
type Completer interface {
	CompleteDiscussion(ctx context.Context, discussionID string) error
}

// Trigger is the periodic participation sweeper.
type Trigger struct {
	cfg        Config
	store      storage.Port
	eventBus   bus.EventBus
	completer  Completer
	strategies func(d *v1.Discussion) (turnstrategy.Strategy, error)
	logger     *logger.Logger

	mu               sync.Mutex
	discussionLimiter map[string]*rate.Limiter // discussion id -> 1-per-RateLimit token bucket
	agentDedup       map[string]time.Time      // "agentID|participantID" -> last trigger time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Trigger. strategyFor resolves the turn strategy for a
// given discussion, typically the orchestrator's strategyFor.
func New(cfg Config, store storage.Port, eventBus bus.EventBus, completer Completer, strategyFor func(*v1.Discussion) (turnstrategy.Strategy, error), log *logger.Logger) *Trigger {
	if log == nil {
		log = logger.Default()
	}
	return &Trigger{
		cfg:               cfg,
		store:             store,
		eventBus:          eventBus,
		completer:         completer,
		strategies:        strategyFor,
		logger:            log.WithFields(zap.String("component", "trigger")),
		discussionLimiter: make(map[string]*rate.Limiter),
		agentDedup:        make(map[string]time.Time),
	}
}

// Start begins the periodic sweep on its own goroutine.
func (t *Trigger) Start(ctx context.Context) {
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.sweepLoop(ctx)
}

// Stop halts the sweep and waits for it to exit.
func (t *Trigger) Stop() {
	if t.stopCh != nil {
		close(t.stopCh)
	}
	t.wg.Wait()
}

func (t *Trigger) sweepLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *Trigger) sweep(ctx context.Context) {
	discussions, err := t.store.SearchDiscussions(ctx, storage.SearchFilter{Status: v1.DiscussionStatusActive})
	if err != nil {
		t.logger.Error("failed to list active discussions", zap.Error(err))
		return
	}
	for _, d := range discussions {
		t.evaluate(ctx, d)
	}
}

// evaluate runs spec §4.9 steps 1-6 for a single discussion. Errors are
// logged and swallowed — a failure here never propagates and the
// discussion continues.
func (t *Trigger) evaluate(ctx context.Context, d *v1.Discussion) {
	if !t.allowDiscussion(d.ID) {
		return // step 1: rate limit
	}

	if d.State.MessageCount >= d.Settings.MaxMessages {
		if err := t.completer.CompleteDiscussion(ctx, d.ID); err != nil {
			t.logger.Error("failed to complete saturated discussion", zap.String("discussion_id", d.ID), zap.Error(err))
		}
		return // step 2: saturation/loop guard
	}

	active, err := t.store.GetActiveParticipants(ctx, d.ID)
	if err != nil {
		t.logger.Error("failed to list active participants", zap.Error(err))
		return
	}
	agents := onlyAgents(active)
	if len(agents) == 0 {
		return // step 3
	}

	messages, err := t.store.ListMessages(ctx, d.ID, t.cfg.RecentContextLimit)
	if err != nil {
		t.logger.Error("failed to list messages", zap.Error(err))
		return
	}

	chosen, initial := t.selectCandidate(d, agents, messages)
	if chosen == nil {
		return
	}

	if !t.allowAgentDedup(chosen.AgentID, chosen.ID) {
		return // step 5
	}

	t.publish(ctx, d, chosen, active, messages, initial)
}

// selectCandidate implements the introduction/main phase split of step 4.
func (t *Trigger) selectCandidate(d *v1.Discussion, agents []*v1.Participant, messages []*v1.Message) (chosen *v1.Participant, initial bool) {
	for _, a := range agents {
		if a.MessageCount == 0 {
			return a, true // introduction phase: first never-spoken agent
		}
	}

	strategy, err := t.strategies(d)
	if err != nil {
		t.logger.Error("failed to resolve turn strategy", zap.Error(err))
		return nil, false
	}
	var last *v1.Message
	if len(messages) > 0 {
		last = messages[len(messages)-1]
	}
	decision := strategy.NextTurn(d, agents, last)
	if decision.NextParticipantID == "" {
		return nil, false
	}
	if last != nil && decision.NextParticipantID == last.ParticipantID &&
		time.Since(last.CreatedAt) < t.cfg.RetriggerDampener {
		return nil, false // re-trigger dampener
	}
	for _, a := range agents {
		if a.ID == decision.NextParticipantID {
			return a, false
		}
	}
	return nil, false
}

func (t *Trigger) publish(ctx context.Context, d *v1.Discussion, chosen *v1.Participant, active []*v1.Participant, recent []*v1.Message, isInitial bool) {
	data := map[string]interface{}{
		"discussionId":          d.ID,
		"agentId":               chosen.AgentID,
		"participantId":         chosen.ID,
		"isInitialParticipation": isInitial,
		"recentMessages":        summarizeMessages(recent, active),
		"alreadyParticipated":   alreadyParticipated(active),
	}
	event := bus.NewEvent("agent.participate", "trigger", data)
	if err := t.eventBus.Publish(ctx, TopicParticipate, event); err != nil {
		t.logger.Error("failed to publish participation request", zap.Error(err))
		return
	}
	t.markAgentDedup(chosen.AgentID, chosen.ID)
}

func (t *Trigger) allowDiscussion(discussionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.discussionLimiter[discussionID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.cfg.DiscussionRateLimit), 1)
		t.discussionLimiter[discussionID] = lim
	}
	return lim.Allow()
}

func (t *Trigger) allowAgentDedup(agentID, participantID string) bool {
	key := agentID + "|" + participantID
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.agentDedup[key]; ok && now.Sub(last) < t.cfg.AgentDedupWindow {
		return false
	}
	return true
}

func (t *Trigger) markAgentDedup(agentID, participantID string) {
	key := agentID + "|" + participantID
	t.mu.Lock()
	t.agentDedup[key] = time.Now()
	t.mu.Unlock()
}

// TriggerNow evaluates a single discussion immediately, outside the regular
// sweep cadence. Used by the Orchestrator right after start to fire the
// initial participation trigger (spec §4.8); still subject to the same
// rate-limit and dedup bookkeeping as the periodic sweep.
func (t *Trigger) TriggerNow(ctx context.Context, d *v1.Discussion) {
	t.evaluate(ctx, d)
}

// ScrubStale drops bookkeeping entries the cleanup task no longer needs
// (spec §5: "scrubbed every 10 min by the cleanup task").
func (t *Trigger) ScrubStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ts := range t.agentDedup {
		if ts.Before(cutoff) {
			delete(t.agentDedup, k)
		}
	}
}

func onlyAgents(ps []*v1.Participant) []*v1.Participant {
	var out []*v1.Participant
	for _, p := range ps {
		if p.Type == v1.ParticipantTypeAgent {
			out = append(out, p)
		}
	}
	return out
}

// summarizeMessages resolves each message's speaker against active so the
// consuming AI worker gets a display name, not just an opaque participant id
// (spec §4.9 step 6).
func summarizeMessages(messages []*v1.Message, active []*v1.Participant) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]interface{}{
			"participantId": m.ParticipantID,
			"speakerName":   displayNameOf(active, m.ParticipantID),
			"content":       m.Content,
			"createdAt":     m.CreatedAt,
		})
	}
	return out
}

// alreadyParticipated lists every active participant that has spoken at
// least once, with display names, per spec §4.9 step 6's published contract.
func alreadyParticipated(active []*v1.Participant) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(active))
	for _, a := range active {
		if a.MessageCount == 0 {
			continue
		}
		out = append(out, map[string]interface{}{
			"participantId": a.ID,
			"displayName":   a.DisplayName,
		})
	}
	return out
}

func displayNameOf(active []*v1.Participant, participantID string) string {
	for _, a := range active {
		if a.ID == participantID {
			return a.DisplayName
		}
	}
	return ""
}
