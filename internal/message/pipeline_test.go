package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/discussord/internal/apierrors"
	"github.com/kandev/discussord/internal/cache"
	"github.com/kandev/discussord/internal/clock"
	"github.com/kandev/discussord/internal/participant"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

func newFixture(t *testing.T) (*Pipeline, storage.Port, *v1.Discussion, *v1.Participant, *v1.Participant) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryPort()

	a := &v1.Participant{DiscussionID: "will-be-set", Type: v1.ParticipantTypeAgent, AgentID: "agent-a", DisplayName: "A", Active: true}
	b := &v1.Participant{DiscussionID: "will-be-set", Type: v1.ParticipantTypeAgent, AgentID: "agent-b", DisplayName: "B", Active: true}

	d := &v1.Discussion{
		Title:        "test",
		Status:       v1.DiscussionStatusActive,
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Settings:     v1.DefaultSettings(),
	}
	require.NoError(t, store.CreateDiscussion(ctx, d))
	a.DiscussionID, b.DiscussionID = d.ID, d.ID
	require.NoError(t, store.CreateParticipant(ctx, a))
	require.NoError(t, store.CreateParticipant(ctx, b))

	d.State.CurrentTurn.ParticipantID = a.ID
	require.NoError(t, store.UpdateDiscussion(ctx, d))

	c := cache.New(store, clock.NewRegistry(), time.Hour, nil)
	pm := participant.New(store)
	return New(c, store, pm), store, d, a, b
}

func TestPipeline_TurnHandoffAccepted(t *testing.T) {
	ctx := context.Background()
	p, _, d, a, _ := newFixture(t)
	strat := &turnstrategy.RoundRobin{}

	msg, updated, event, err := p.Send(ctx, strat, SendInput{
		DiscussionID:         d.ID,
		ParticipantOrAgentID: a.ID,
		Content:              "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, msg.ParticipantID)
	assert.Equal(t, 1, updated.State.MessageCount)
	assert.Equal(t, v1.EventMessageSent, event.Type)
}

func TestPipeline_WrongTurnRejected(t *testing.T) {
	ctx := context.Background()
	p, _, d, _, b := newFixture(t)
	strat := &turnstrategy.RoundRobin{}

	_, _, _, err := p.Send(ctx, strat, SendInput{
		DiscussionID:         d.ID,
		ParticipantOrAgentID: b.ID,
		Content:              "hello",
	})
	require.Error(t, err)
	assert.Equal(t, v1.ErrNotYourTurn, apierrors.Kind(err))
}

func TestPipeline_InitialParticipationBypassesTurnCheck(t *testing.T) {
	ctx := context.Background()
	p, _, d, _, b := newFixture(t)
	strat := &turnstrategy.RoundRobin{}

	_, _, event, err := p.Send(ctx, strat, SendInput{
		DiscussionID:         d.ID,
		ParticipantOrAgentID: b.ID,
		Content:              "hello first",
		Metadata:             map[string]interface{}{"isInitialParticipation": true},
	})
	require.NoError(t, err)
	assert.Equal(t, v1.EventMessageSent, event.Type)
}

func TestPipeline_MessageCapTransitionsToCompleted(t *testing.T) {
	ctx := context.Background()
	p, store, d, a, _ := newFixture(t)
	d.Settings.MaxMessages = 1
	require.NoError(t, store.UpdateDiscussion(ctx, d))
	strat := &turnstrategy.RoundRobin{}

	_, updated, _, err := p.Send(ctx, strat, SendInput{
		DiscussionID:         d.ID,
		ParticipantOrAgentID: a.ID,
		Content:              "last one",
	})
	require.NoError(t, err)
	assert.Equal(t, v1.DiscussionStatusCompleted, updated.Status)
}
