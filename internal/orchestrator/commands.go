package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/apierrors"
	"github.com/kandev/discussord/internal/message"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// startSpan opens a trace span around a single command dispatch. With the
// default no-op tracer provider this costs a context allocation; a real
// provider wired by the caller gets full command-level tracing for free.
func (o *Orchestrator) startSpan(ctx context.Context, name string) (context.Context, func()) {
	spanCtx, span := o.tracer.Start(ctx, name)
	return spanCtx, func() { span.End() }
}

func newEvent(t v1.EventType, discussionID string, data map[string]interface{}) *v1.Event {
	return &v1.Event{
		ID:           uuid.New().String(),
		Type:         t,
		DiscussionID: discussionID,
		Data:         data,
		Timestamp:    time.Now().UTC(),
		Source:       "orchestrator",
	}
}

func okResult(data interface{}, events ...*v1.Event) *v1.Result {
	out := make([]v1.Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			out = append(out, *e)
		}
	}
	return &v1.Result{Success: true, Data: data, Events: out}
}

func failResult(kind v1.ErrorKind, message string) *v1.Result {
	return &v1.Result{Success: false, ErrorKind: kind, Message: message}
}

func errResult(err error) *v1.Result {
	return failResult(apierrors.Kind(err), err.Error())
}

// CreateDiscussion implements createDiscussion (spec §6): validates the
// turn-strategy config eagerly, persists the draft discussion, and creates
// any participants supplied up front.
func (o *Orchestrator) CreateDiscussion(ctx context.Context, req v1.CreateDiscussionRequest, createdBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "CreateDiscussion")
	defer end()

	strategy, err := turnstrategy.New(req.TurnStrategy)
	if err != nil {
		return errResult(err)
	}
	if err := strategy.ValidateConfig(req.TurnStrategy, nil); err != nil {
		return errResult(err)
	}

	settings := v1.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if len(req.Participants) > settings.MaxParticipants {
		return failResult(v1.ErrLimitExceeded, "participant list exceeds maxParticipants")
	}

	d := &v1.Discussion{
		Title:        req.Title,
		Topic:        req.Topic,
		Description:  req.Description,
		CreatorID:    createdBy,
		Status:       v1.DiscussionStatusDraft,
		TurnStrategy: req.TurnStrategy,
		Settings:     settings,
		Metadata:     req.Metadata,
	}
	d.State.LastActivity = time.Now().UTC()

	if err := o.store.CreateDiscussion(ctx, d); err != nil {
		return errResult(apierrors.StoreError(err))
	}

	var events []*v1.Event
	for _, spec := range req.Participants {
		p := &v1.Participant{
			DiscussionID: d.ID,
			Type:         spec.Type,
			AgentID:      spec.AgentID,
			UserID:       spec.UserID,
			Role:         spec.Role,
			DisplayName:  spec.DisplayName,
		}
		if err := o.participants.Create(ctx, p); err != nil {
			o.logger.Error("failed to create initial participant", zap.String("discussion_id", d.ID), zap.Error(err))
			continue
		}
		events = append(events, newEvent(v1.EventParticipantJoined, d.ID, map[string]interface{}{
			"participantId": p.ID,
			"type":          string(p.Type),
			"displayName":   p.DisplayName,
		}))
	}
	o.cache.Put(d)
	for _, ev := range events {
		o.emit(ctx, ev)
	}

	return okResult(d, events...)
}

// StartDiscussion implements startDiscussion: draft->active, requires >=2
// active participants, asks the Turn Strategy for the first turn, schedules
// the turn timer, and fires the initial participation trigger.
func (o *Orchestrator) StartDiscussion(ctx context.Context, id, startedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "StartDiscussion")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status != v1.DiscussionStatusDraft {
			return failResult(v1.ErrInvalidState, "start requires draft status, has: "+string(d.Status)), nil
		}

		active, err := o.participants.ActiveOf(ctx, id)
		if err != nil {
			return errResult(err), nil
		}
		if len(active) < 2 {
			return failResult(v1.ErrInvalidState, "active discussions require at least 2 active participants"), nil
		}

		strategy, err := o.strategyFor(d)
		if err != nil {
			return errResult(err), nil
		}
		if err := strategy.ValidateConfig(d.TurnStrategy, active); err != nil {
			return errResult(err), nil
		}

		decision := strategy.NextTurn(d, active, nil)
		now := time.Now().UTC()
		d.Status = v1.DiscussionStatusActive
		d.State.CurrentTurn.ParticipantID = decision.NextParticipantID
		d.State.TurnNumber = decision.TurnNumber
		d.State.LastActivity = now
		dur := turnDuration(d, decision)
		if decision.NextParticipantID != "" {
			d.State.TurnStartTime = now
			d.State.ExpectedEndTime = now.Add(dur)
		}

		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		if decision.NextParticipantID != "" {
			o.timers.Schedule(d.ID, dur, o.onTurnTimeout)
		}

		statusEv := newEvent(v1.EventStatusChanged, d.ID, map[string]interface{}{"status": string(d.Status), "startedBy": startedBy})
		turnEv := newEvent(v1.EventTurnChanged, d.ID, map[string]interface{}{"participantId": decision.NextParticipantID, "turnNumber": decision.TurnNumber})
		o.emit(ctx, statusEv)
		o.emit(ctx, turnEv)

		o.triggerLoop.TriggerNow(ctx, d)

		return okResult(d, statusEv, turnEv), nil
	})
	return res
}

// PauseDiscussion implements pauseDiscussion. Pausing an already-paused
// discussion is a no-op success (spec §8 idempotence property).
func (o *Orchestrator) PauseDiscussion(ctx context.Context, id, pausedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "PauseDiscussion")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status == v1.DiscussionStatusPaused {
			return okResult(d), nil
		}
		if d.Status != v1.DiscussionStatusActive {
			return failResult(v1.ErrInvalidState, "pause requires active status, has: "+string(d.Status)), nil
		}

		o.timers.Cancel(d.ID)
		d.Status = v1.DiscussionStatusPaused
		d.State.LastActivity = time.Now().UTC()
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		ev := newEvent(v1.EventStatusChanged, d.ID, map[string]interface{}{"status": string(d.Status), "pausedBy": pausedBy})
		o.emit(ctx, ev)
		return okResult(d, ev), nil
	})
	return res
}

// ResumeDiscussion implements resumeDiscussion: re-reads the configured
// turn timeout and reschedules a fresh timer. Resuming an already-active
// discussion is a no-op success.
func (o *Orchestrator) ResumeDiscussion(ctx context.Context, id, resumedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "ResumeDiscussion")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status == v1.DiscussionStatusActive {
			return okResult(d), nil
		}
		if d.Status != v1.DiscussionStatusPaused {
			return failResult(v1.ErrInvalidState, "resume requires paused status, has: "+string(d.Status)), nil
		}

		now := time.Now().UTC()
		d.Status = v1.DiscussionStatusActive
		d.State.LastActivity = now
		if d.State.CurrentTurn.ParticipantID != "" {
			dur := time.Duration(d.Settings.TurnTimeout) * time.Second
			d.State.TurnStartTime = now
			d.State.ExpectedEndTime = now.Add(dur)
			o.timers.Schedule(d.ID, dur, o.onTurnTimeout)
		}
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		ev := newEvent(v1.EventStatusChanged, d.ID, map[string]interface{}{"status": string(d.Status), "resumedBy": resumedBy})
		o.emit(ctx, ev)
		return okResult(d, ev), nil
	})
	return res
}

// StopDiscussion implements stopDiscussion: active|paused -> completed.
func (o *Orchestrator) StopDiscussion(ctx context.Context, id, stoppedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "StopDiscussion")
	defer end()
	return o.transitionTerminal(ctx, id, v1.DiscussionStatusCompleted, "stoppedBy", stoppedBy,
		v1.DiscussionStatusActive, v1.DiscussionStatusPaused)
}

// ArchiveDiscussion implements the "any --archive--> archived" transition
// (spec §4.8). Not part of §6's named command list but a real edge of the
// lifecycle state machine the spec defines, so it's exposed like the other
// terminal transitions.
func (o *Orchestrator) ArchiveDiscussion(ctx context.Context, id, archivedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "ArchiveDiscussion")
	defer end()
	return o.transitionTerminal(ctx, id, v1.DiscussionStatusArchived, "archivedBy", archivedBy)
}

// CancelDiscussion implements the "any --cancel--> cancelled" transition.
func (o *Orchestrator) CancelDiscussion(ctx context.Context, id, cancelledBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "CancelDiscussion")
	defer end()
	return o.transitionTerminal(ctx, id, v1.DiscussionStatusCancelled, "cancelledBy", cancelledBy)
}

// transitionTerminal moves a discussion to a terminal status. If from is
// non-empty, the current status must be one of them (INVALID_STATE
// otherwise); an empty from list means "any status" per spec §4.8.
func (o *Orchestrator) transitionTerminal(ctx context.Context, id string, to v1.DiscussionStatus, actorField, actor string, from ...v1.DiscussionStatus) *v1.Result {
	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status == to {
			return okResult(d), nil
		}
		if len(from) > 0 && !statusIn(d.Status, from) {
			return failResult(v1.ErrInvalidState, "cannot transition from "+string(d.Status)+" to "+string(to)), nil
		}

		o.timers.Cancel(d.ID)
		d.Status = to
		d.State.LastActivity = time.Now().UTC()
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		data := map[string]interface{}{"status": string(to)}
		if actor != "" {
			data[actorField] = actor
		}
		ev := newEvent(v1.EventStatusChanged, d.ID, data)
		o.emit(ctx, ev)
		return okResult(d, ev), nil
	})
	return res
}

func statusIn(s v1.DiscussionStatus, set []v1.DiscussionStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

// CompleteDiscussion implements the trigger.Completer contract: it
// transitions a discussion to completed when the message cap is crossed
// (spec §4.9 step 2, §4.8's "crossing the cap transitions to completed").
func (o *Orchestrator) CompleteDiscussion(ctx context.Context, discussionID string) error {
	_, err := o.withOperationLock(discussionID, func() (*v1.Result, error) {
		d, getErr := o.cache.Get(ctx, discussionID, true)
		if getErr != nil {
			return nil, apierrors.NotFound("discussion not found: " + discussionID)
		}
		if d.Status == v1.DiscussionStatusCompleted {
			return nil, nil
		}
		o.timers.Cancel(d.ID)
		d.Status = v1.DiscussionStatusCompleted
		d.State.LastActivity = time.Now().UTC()
		if updErr := o.store.UpdateDiscussion(ctx, d); updErr != nil {
			return nil, apierrors.StoreError(updErr)
		}
		o.cache.Put(d)
		ev := newEvent(v1.EventStatusChanged, d.ID, map[string]interface{}{"status": string(d.Status), "reason": "message_cap_reached"})
		o.emit(ctx, ev)
		return nil, nil
	})
	return err
}

// AddParticipant implements addParticipant: rejects once settings.maxParticipants is reached.
func (o *Orchestrator) AddParticipant(ctx context.Context, id string, spec v1.ParticipantSpec, addedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "AddParticipant")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		active, err := o.participants.ActiveOf(ctx, id)
		if err != nil {
			return errResult(err), nil
		}
		if len(active) >= d.Settings.MaxParticipants {
			return failResult(v1.ErrLimitExceeded, "discussion already has maxParticipants active participants"), nil
		}

		p := &v1.Participant{
			DiscussionID: id,
			Type:         spec.Type,
			AgentID:      spec.AgentID,
			UserID:       spec.UserID,
			Role:         spec.Role,
			DisplayName:  spec.DisplayName,
		}
		if err := o.participants.Create(ctx, p); err != nil {
			return errResult(err), nil
		}

		d.State.LastActivity = time.Now().UTC()
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		ev := newEvent(v1.EventParticipantJoined, id, map[string]interface{}{
			"participantId": p.ID, "type": string(p.Type), "displayName": p.DisplayName, "addedBy": addedBy,
		})
		o.emit(ctx, ev)
		return okResult(p, ev), nil
	})
	return res
}

// RemoveParticipant tombstones a participant (spec §3 "tombstoned, not
// deleted, when removed"). If the removed participant held the current
// turn, the turn is cleared to preserve invariant 1 (a turn owner must
// reference an active participant).
func (o *Orchestrator) RemoveParticipant(ctx context.Context, id, participantID, removedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "RemoveParticipant")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		p, err := o.participants.ByID(ctx, participantID)
		if err != nil {
			return errResult(err), nil
		}
		if p.DiscussionID != id {
			return failResult(v1.ErrParticipantNotFound, "participant does not belong to discussion: "+participantID), nil
		}
		if err := o.participants.Remove(ctx, participantID); err != nil {
			return errResult(err), nil
		}

		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.State.CurrentTurn.ParticipantID == participantID {
			o.timers.Cancel(d.ID)
			d.State.CurrentTurn.ParticipantID = ""
		}
		d.State.LastActivity = time.Now().UTC()
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)

		ev := newEvent(v1.EventParticipantLeft, id, map[string]interface{}{"participantId": participantID, "removedBy": removedBy})
		o.emit(ctx, ev)
		return okResult(p, ev), nil
	})
	return res
}

// SendMessage implements sendMessage via the Message Pipeline (spec §4.7).
func (o *Orchestrator) SendMessage(ctx context.Context, id, participantOrAgentID, content string, msgType v1.MessageType, metadata map[string]interface{}) *v1.Result {
	ctx, end := o.startSpan(ctx, "SendMessage")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		strategy, err := o.strategyFor(d)
		if err != nil {
			return errResult(err), nil
		}
		msg, _, ev, err := o.pipeline.Send(ctx, strategy, message.SendInput{
			DiscussionID:         id,
			ParticipantOrAgentID: participantOrAgentID,
			Content:              content,
			Type:                 msgType,
			Metadata:             metadata,
		})
		if err != nil {
			return errResult(err), nil
		}
		o.emit(ctx, ev)
		return okResult(msg, ev), nil
	})
	return res
}

// AdvanceTurn implements advanceTurn (manual or caller-invoked path; the
// timer-driven path is onTurnTimeout, sharing computeAndApplyNextTurn).
func (o *Orchestrator) AdvanceTurn(ctx context.Context, id, advancedBy string) *v1.Result {
	ctx, end := o.startSpan(ctx, "AdvanceTurn")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status != v1.DiscussionStatusActive {
			return failResult(v1.ErrInvalidState, "advanceTurn requires active status, has: "+string(d.Status)), nil
		}
		ev, err := o.computeAndApplyNextTurn(ctx, d)
		if err != nil {
			return errResult(err), nil
		}
		o.emit(ctx, ev)
		return okResult(d, ev), nil
	})
	return res
}

// RequestTurn implements requestTurn: only moderated discussions queue
// turn requests; any other strategy rejects it as inapplicable.
func (o *Orchestrator) RequestTurn(ctx context.Context, id, participantID string) *v1.Result {
	ctx, end := o.startSpan(ctx, "RequestTurn")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.TurnStrategy.Kind != v1.TurnStrategyModerated {
			return failResult(v1.ErrInvalidState, "requestTurn only applies to moderated discussions"), nil
		}
		p, err := o.participants.ByID(ctx, participantID)
		if err != nil {
			return errResult(err), nil
		}
		if !p.Active {
			return errResult(apierrors.ParticipantInactive("participant is not active: " + participantID)), nil
		}
		for _, q := range d.TurnStrategy.Queue {
			if q == participantID {
				return okResult(d), nil // already queued: idempotent
			}
		}
		d.TurnStrategy.Queue = append(d.TurnStrategy.Queue, participantID)
		if err := o.store.UpdateDiscussion(ctx, d); err != nil {
			return errResult(apierrors.StoreError(err)), nil
		}
		o.cache.Put(d)
		return okResult(d), nil
	})
	return res
}

// EndTurn implements endTurn: only the current turn owner may end it early;
// it then advances the turn exactly like a timer expiry would.
func (o *Orchestrator) EndTurn(ctx context.Context, id, participantID string) *v1.Result {
	ctx, end := o.startSpan(ctx, "EndTurn")
	defer end()

	res, _ := o.withOperationLock(id, func() (*v1.Result, error) {
		d, err := o.cache.Get(ctx, id, true)
		if err != nil {
			return failResult(v1.ErrNotFound, "discussion not found: "+id), nil
		}
		if d.Status != v1.DiscussionStatusActive {
			return failResult(v1.ErrInvalidState, "endTurn requires active status, has: "+string(d.Status)), nil
		}
		if d.State.CurrentTurn.ParticipantID != participantID {
			return errResult(apierrors.NotYourTurn("participant does not hold the current turn: " + participantID)), nil
		}
		ev, err := o.computeAndApplyNextTurn(ctx, d)
		if err != nil {
			return errResult(err), nil
		}
		o.emit(ctx, ev)
		return okResult(d, ev), nil
	})
	return res
}

// AddReaction implements addReaction (spec §12 supplemented semantics):
// validated against settings.allowReactions. The stored reaction list is
// idempotent per (messageId, participantId, emoji); a repeat still returns
// success and emits reaction_added again.
func (o *Orchestrator) AddReaction(ctx context.Context, id, messageID, participantID, emoji string) *v1.Result {
	ctx, end := o.startSpan(ctx, "AddReaction")
	defer end()

	d, err := o.cache.Get(ctx, id, false)
	if err != nil {
		return failResult(v1.ErrNotFound, "discussion not found: "+id)
	}
	if !d.Settings.AllowReactions {
		return failResult(v1.ErrInvalidConfig, "reactions are disabled for this discussion")
	}
	p, err := o.participants.ByID(ctx, participantID)
	if err != nil {
		return errResult(err)
	}
	if !p.Active {
		return errResult(apierrors.ParticipantInactive("participant is not active: " + participantID))
	}

	r := v1.Reaction{MessageID: messageID, ParticipantID: participantID, Emoji: emoji, CreatedAt: time.Now().UTC()}
	if err := o.store.AddReaction(ctx, messageID, r); err != nil {
		return failResult(v1.ErrNotFound, "message not found: "+messageID)
	}

	ev := newEvent(v1.EventReactionAdded, id, map[string]interface{}{
		"messageId": messageID, "participantId": participantID, "emoji": emoji,
	})
	o.emit(ctx, ev)
	return okResult(r, ev)
}

// GetDiscussion implements getDiscussion.
func (o *Orchestrator) GetDiscussion(ctx context.Context, id string, forceRefresh bool) *v1.Result {
	d, err := o.cache.Get(ctx, id, forceRefresh)
	if err != nil {
		return failResult(v1.ErrNotFound, "discussion not found: "+id)
	}
	return okResult(d)
}

// VerifyParticipantAccess implements verifyParticipantAccess per the
// pinned open-question resolution in SPEC_FULL §12: true iff userID
// matches an active participant's UserID, or (fallback) userID itself
// resolves as an active participant's own id.
func (o *Orchestrator) VerifyParticipantAccess(ctx context.Context, id, userID string) *v1.Result {
	active, err := o.participants.ActiveOf(ctx, id)
	if err != nil {
		return errResult(err)
	}
	for _, p := range active {
		if p.UserID == userID {
			return okResult(true)
		}
	}
	if p, err := o.participants.ByID(ctx, userID); err == nil && p.DiscussionID == id && p.Active {
		return okResult(true)
	}
	return okResult(false)
}

// turnDuration picks the strategy's estimated duration when positive,
// falling back to the discussion's configured turn timeout.
func turnDuration(d *v1.Discussion, decision turnstrategy.Decision) time.Duration {
	if decision.EstimatedDurationSeconds > 0 {
		return time.Duration(decision.EstimatedDurationSeconds) * time.Second
	}
	return time.Duration(d.Settings.TurnTimeout) * time.Second
}
