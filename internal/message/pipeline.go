// Package message implements the Message Pipeline (spec §4.7): validate,
// map type, attach to turn, persist via store, emit event. Grounded on the
// teacher's typed-payload-construction and dispatch-then-publish sequencing
// (orchestrator/watcher.go, orchestrator/service.go).
package message

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/discussord/internal/apierrors"
	"github.com/kandev/discussord/internal/cache"
	"github.com/kandev/discussord/internal/participant"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// SendInput is the caller-supplied payload to Pipeline.Send.
type SendInput struct {
	DiscussionID          string
	ParticipantOrAgentID  string
	Content               string
	Type                  v1.MessageType
	Metadata              map[string]interface{}
}

// Pipeline runs the full sendMessage sequence: load, resolve, turn-check,
// persist, update activity/state, emit.
type Pipeline struct {
	cache        *cache.Cache
	store        storage.Port
	participants *participant.Manager
}

// New constructs a Pipeline over the given collaborators.
func New(c *cache.Cache, store storage.Port, participants *participant.Manager) *Pipeline {
	return &Pipeline{cache: c, store: store, participants: participants}
}

// Send executes spec §4.7 steps 1-9 and returns the persisted message, the
// refreshed discussion, and the event to emit. Strategy must be the one
// matching the discussion's configured turn strategy kind.
func (p *Pipeline) Send(ctx context.Context, strategy turnstrategy.Strategy, in SendInput) (*v1.Message, *v1.Discussion, *v1.Event, error) {
	d, err := p.cache.Get(ctx, in.DiscussionID, true)
	if err != nil {
		return nil, nil, nil, apierrors.NotFound("discussion not found: " + in.DiscussionID)
	}

	pt, err := p.participants.Resolve(ctx, in.DiscussionID, in.ParticipantOrAgentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !pt.Active {
		return nil, nil, nil, apierrors.ParticipantInactive("participant is not active: " + pt.ID)
	}

	isInitial, _ := in.Metadata["isInitialParticipation"].(bool)
	if d.TurnStrategy.Kind != v1.TurnStrategyFreeForm &&
		d.State.CurrentTurn.ParticipantID != "" &&
		d.State.CurrentTurn.ParticipantID != pt.ID &&
		!isInitial {
		return nil, nil, nil, apierrors.NotYourTurn("it is not participant's turn: " + pt.ID)
	}

	msgType := v1.NormalizeMessageType(in.Type)

	msg := &v1.Message{
		DiscussionID:  in.DiscussionID,
		ParticipantID: pt.ID,
		Content:       in.Content,
		Type:          msgType,
		Metadata:      in.Metadata,
	}
	if err := p.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, nil, apierrors.StoreError(err)
	}

	if err := p.participants.UpdateActivity(ctx, pt.ID, 1); err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	d.State.MessageCount++
	d.State.LastActivity = now
	if d.State.MessageCount >= d.Settings.MaxMessages {
		d.Status = v1.DiscussionStatusCompleted
	}
	if err := p.store.UpdateDiscussion(ctx, d); err != nil {
		return nil, nil, nil, apierrors.StoreError(err)
	}
	p.cache.Put(d)

	event := &v1.Event{
		ID:           uuid.New().String(),
		Type:         v1.EventMessageSent,
		DiscussionID: in.DiscussionID,
		Timestamp:    now,
		Source:       "message.pipeline",
		Data: map[string]interface{}{
			"messageId":     msg.ID,
			"participantId": pt.ID,
			"type":          string(msgType),
		},
	}

	return msg, d, event, nil
}
