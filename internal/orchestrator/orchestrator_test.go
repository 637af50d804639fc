package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/storage"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	store := storage.NewMemoryPort()
	eb := bus.NewMemoryEventBus(nil)
	cfg := DefaultConfig()
	return New(cfg, store, eb, nil)
}

func createRoundRobinDiscussion(t *testing.T, o *Orchestrator, names ...string) *v1.Discussion {
	t.Helper()
	ctx := context.Background()
	specs := make([]v1.ParticipantSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, v1.ParticipantSpec{Type: v1.ParticipantTypeAgent, AgentID: n, DisplayName: n})
	}
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "test",
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Participants: specs,
	}, "creator-1")
	require.True(t, res.Success, res.Message)
	return res.Data.(*v1.Discussion)
}

func participantByAgent(t *testing.T, o *Orchestrator, discussionID, agentID string) *v1.Participant {
	t.Helper()
	p, err := o.participants.ByAgentID(context.Background(), discussionID, agentID)
	require.NoError(t, err)
	return p
}

// Scenario 1 (spec §8): turn handoff across three agents under round_robin.
func TestOrchestrator_TurnHandoff(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A", "B", "C")

	startRes := o.StartDiscussion(ctx, d.ID, "op")
	require.True(t, startRes.Success, startRes.Message)
	started := startRes.Data.(*v1.Discussion)
	assert.Equal(t, v1.DiscussionStatusActive, started.Status)

	a := participantByAgent(t, o, d.ID, "A")
	assert.Equal(t, a.ID, started.State.CurrentTurn.ParticipantID)

	sendRes := o.SendMessage(ctx, d.ID, a.ID, "hello", v1.MessageTypeMessage, nil)
	require.True(t, sendRes.Success, sendRes.Message)

	advRes := o.AdvanceTurn(ctx, d.ID, "op")
	require.True(t, advRes.Success, advRes.Message)
	advanced := advRes.Data.(*v1.Discussion)
	b := participantByAgent(t, o, d.ID, "B")
	assert.Equal(t, b.ID, advanced.State.CurrentTurn.ParticipantID)
}

// Scenario 2: wrong-turn rejection emits no events.
func TestOrchestrator_WrongTurnRejected(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A", "B")
	require.True(t, o.StartDiscussion(ctx, d.ID, "op").Success)

	b := participantByAgent(t, o, d.ID, "B")
	res := o.SendMessage(ctx, d.ID, b.ID, "hello", v1.MessageTypeMessage, nil)
	require.False(t, res.Success)
	assert.Equal(t, v1.ErrNotYourTurn, res.ErrorKind)
	assert.Empty(t, res.Events)
}

// Scenario 3: metadata.isInitialParticipation bypasses the turn check.
func TestOrchestrator_InitialParticipationBypass(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A", "B")
	require.True(t, o.StartDiscussion(ctx, d.ID, "op").Success)

	b := participantByAgent(t, o, d.ID, "B")
	res := o.SendMessage(ctx, d.ID, b.ID, "hello first", v1.MessageTypeMessage, map[string]interface{}{"isInitialParticipation": true})
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Events, 1)
	assert.Equal(t, v1.EventMessageSent, res.Events[0].Type)
}

func TestOrchestrator_StartRequiresTwoActiveParticipants(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A")

	res := o.StartDiscussion(ctx, d.ID, "op")
	require.False(t, res.Success)
	assert.Equal(t, v1.ErrInvalidState, res.ErrorKind)
}

func TestOrchestrator_PauseResumeLifecycle(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A", "B")
	require.True(t, o.StartDiscussion(ctx, d.ID, "op").Success)

	pauseRes := o.PauseDiscussion(ctx, d.ID, "op")
	require.True(t, pauseRes.Success)
	assert.Equal(t, v1.DiscussionStatusPaused, pauseRes.Data.(*v1.Discussion).Status)

	// Idempotent: pausing an already-paused discussion is a no-op success.
	again := o.PauseDiscussion(ctx, d.ID, "op")
	require.True(t, again.Success)
	assert.Empty(t, again.Events)

	resumeRes := o.ResumeDiscussion(ctx, d.ID, "op")
	require.True(t, resumeRes.Success)
	assert.Equal(t, v1.DiscussionStatusActive, resumeRes.Data.(*v1.Discussion).Status)
}

func TestOrchestrator_StopTransitionsToCompleted(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	d := createRoundRobinDiscussion(t, o, "A", "B")
	require.True(t, o.StartDiscussion(ctx, d.ID, "op").Success)

	res := o.StopDiscussion(ctx, d.ID, "op")
	require.True(t, res.Success)
	assert.Equal(t, v1.DiscussionStatusCompleted, res.Data.(*v1.Discussion).Status)
}

func TestOrchestrator_AddParticipantRejectsOverMax(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	settings := v1.DefaultSettings()
	settings.MaxParticipants = 2
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "small",
		Settings:     &settings,
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Participants: []v1.ParticipantSpec{
			{Type: v1.ParticipantTypeAgent, AgentID: "A", DisplayName: "A"},
			{Type: v1.ParticipantTypeAgent, AgentID: "B", DisplayName: "B"},
		},
	}, "creator")
	require.True(t, res.Success)
	d := res.Data.(*v1.Discussion)

	addRes := o.AddParticipant(ctx, d.ID, v1.ParticipantSpec{Type: v1.ParticipantTypeAgent, AgentID: "C", DisplayName: "C"}, "op")
	require.False(t, addRes.Success)
	assert.Equal(t, v1.ErrLimitExceeded, addRes.ErrorKind)
}

func TestOrchestrator_ModeratedRequiresModerator(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "moderated",
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyModerated},
	}, "creator")
	require.False(t, res.Success)
	assert.Equal(t, v1.ErrInvalidConfig, res.ErrorKind)
}

func TestOrchestrator_AddReactionRequiresSettingEnabled(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	settings := v1.DefaultSettings()
	settings.AllowReactions = false
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "no-reactions",
		Settings:     &settings,
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Participants: []v1.ParticipantSpec{
			{Type: v1.ParticipantTypeAgent, AgentID: "A", DisplayName: "A"},
			{Type: v1.ParticipantTypeAgent, AgentID: "B", DisplayName: "B"},
		},
	}, "creator")
	require.True(t, res.Success)
	d := res.Data.(*v1.Discussion)
	require.True(t, o.StartDiscussion(ctx, d.ID, "op").Success)

	a := participantByAgent(t, o, d.ID, "A")
	sendRes := o.SendMessage(ctx, d.ID, a.ID, "hi", v1.MessageTypeMessage, nil)
	require.True(t, sendRes.Success)
	msg := sendRes.Data.(*v1.Message)

	reactRes := o.AddReaction(ctx, d.ID, msg.ID, a.ID, "👍")
	require.False(t, reactRes.Success)
	assert.Equal(t, v1.ErrInvalidConfig, reactRes.ErrorKind)
}

func TestOrchestrator_VerifyParticipantAccess(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "access",
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Participants: []v1.ParticipantSpec{
			{Type: v1.ParticipantTypeUser, UserID: "user-1", DisplayName: "U"},
		},
	}, "creator")
	require.True(t, res.Success)
	d := res.Data.(*v1.Discussion)

	ok := o.VerifyParticipantAccess(ctx, d.ID, "user-1")
	require.True(t, ok.Success)
	assert.Equal(t, true, ok.Data)

	denied := o.VerifyParticipantAccess(ctx, d.ID, "user-nobody")
	require.True(t, denied.Success)
	assert.Equal(t, false, denied.Data)
}

func TestOrchestrator_TurnTimerExpiryAdvancesTurn(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	settings := v1.DefaultSettings()
	settings.TurnTimeout = 1
	res := o.CreateDiscussion(ctx, v1.CreateDiscussionRequest{
		Title:        "timed",
		Settings:     &settings,
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyRoundRobin},
		Participants: []v1.ParticipantSpec{
			{Type: v1.ParticipantTypeAgent, AgentID: "A", DisplayName: "A"},
			{Type: v1.ParticipantTypeAgent, AgentID: "B", DisplayName: "B"},
		},
	}, "creator")
	require.True(t, res.Success)
	d := res.Data.(*v1.Discussion)
	startRes := o.StartDiscussion(ctx, d.ID, "op")
	require.True(t, startRes.Success)
	first := startRes.Data.(*v1.Discussion).State.CurrentTurn.ParticipantID

	require.Eventually(t, func() bool {
		cur := o.GetDiscussion(ctx, d.ID, true)
		return cur.Success && cur.Data.(*v1.Discussion).State.CurrentTurn.ParticipantID != first
	}, 3*time.Second, 20*time.Millisecond)
}
