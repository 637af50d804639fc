package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/apierrors"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// computeAndApplyNextTurn asks the discussion's Turn Strategy for the next
// owner, mutates and persists the turn state, and (re)schedules the turn
// timer. It is the shared path for advanceTurn, endTurn, and timer expiry.
// If the strategy returns no eligible participant the turn is left unset
// and no timer is scheduled (spec §4.8).
func (o *Orchestrator) computeAndApplyNextTurn(ctx context.Context, d *v1.Discussion) (*v1.Event, error) {
	strategy, err := o.strategyFor(d)
	if err != nil {
		return nil, err
	}
	active, err := o.participants.ActiveOf(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	recent, err := o.store.ListMessages(ctx, d.ID, 1)
	if err != nil {
		return nil, apierrors.StoreError(err)
	}
	var last *v1.Message
	if len(recent) > 0 {
		last = recent[len(recent)-1]
	}

	decision := strategy.NextTurn(d, active, last)
	o.timers.Cancel(d.ID)
	// A moderated requester handed the turn leaves the queue.
	if d.TurnStrategy.Kind == v1.TurnStrategyModerated && len(d.TurnStrategy.Queue) > 0 &&
		decision.NextParticipantID == d.TurnStrategy.Queue[0] {
		d.TurnStrategy.Queue = d.TurnStrategy.Queue[1:]
	}

	now := time.Now().UTC()
	d.State.CurrentTurn.ParticipantID = decision.NextParticipantID
	d.State.TurnNumber = decision.TurnNumber
	d.State.LastActivity = now
	if decision.NextParticipantID != "" {
		dur := turnDuration(d, decision)
		d.State.TurnStartTime = now
		d.State.ExpectedEndTime = now.Add(dur)
	} else {
		d.State.TurnStartTime = time.Time{}
		d.State.ExpectedEndTime = time.Time{}
	}

	if err := o.store.UpdateDiscussion(ctx, d); err != nil {
		return nil, apierrors.StoreError(err)
	}
	o.cache.Put(d)

	if decision.NextParticipantID != "" {
		o.timers.Schedule(d.ID, turnDuration(d, decision), o.onTurnTimeout)
	}

	return newEvent(v1.EventTurnChanged, d.ID, map[string]interface{}{
		"participantId": decision.NextParticipantID,
		"turnNumber":    decision.TurnNumber,
	}), nil
}

// onTurnTimeout is the Clock & Timer Registry callback for turn expiry
// (spec §4.1): it MUST re-check the discussion's current status before
// acting, since the discussion may have been paused or stopped between
// scheduling and firing. It runs under the same per-discussion operation
// lock as the manual command path so it never races a concurrent
// sendMessage/advanceTurn/lifecycle transition. Errors are logged and
// swallowed — a timer callback never propagates failure.
func (o *Orchestrator) onTurnTimeout(discussionID string) {
	ctx := context.Background()
	_, _ = o.withOperationLock(discussionID, func() (*v1.Result, error) {
		d, err := o.store.GetDiscussion(ctx, discussionID)
		if err != nil {
			o.logger.Error("turn timeout: discussion not found", zap.String("discussion_id", discussionID), zap.Error(err))
			return nil, nil
		}
		if d.Status != v1.DiscussionStatusActive {
			return nil, nil // race: paused/stopped/archived since the timer was armed
		}
		o.cache.Put(d)

		ev, err := o.computeAndApplyNextTurn(ctx, d)
		if err != nil {
			o.logger.Error("turn timeout: failed to advance turn", zap.String("discussion_id", discussionID), zap.Error(err))
			return nil, nil
		}
		o.emit(ctx, ev)
		return nil, nil
	})
}
