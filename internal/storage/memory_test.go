package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

func TestMemoryPort_DiscussionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPort()

	d := &v1.Discussion{Title: "weekly sync", Status: v1.DiscussionStatusDraft}
	require.NoError(t, store.CreateDiscussion(ctx, d))
	assert.NotEmpty(t, d.ID)

	loaded, err := store.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Title, loaded.Title)
	assert.Equal(t, d.Status, loaded.Status)

	loaded.Status = v1.DiscussionStatusActive
	require.NoError(t, store.UpdateDiscussion(ctx, loaded))

	reloaded, err := store.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.DiscussionStatusActive, reloaded.Status)
}

func TestMemoryPort_CacheIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPort()
	d := &v1.Discussion{Title: "t"}
	require.NoError(t, store.CreateDiscussion(ctx, d))

	loaded, err := store.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	loaded.Title = "mutated"

	reloaded, err := store.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", reloaded.Title, "mutating a returned copy must not affect stored state")
}

func TestMemoryPort_AppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPort()
	d := &v1.Discussion{Title: "t"}
	require.NoError(t, store.CreateDiscussion(ctx, d))

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendMessage(ctx, &v1.Message{DiscussionID: d.ID, Content: "m"}))
	}

	all, err := store.ListMessages(ctx, d.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	limited, err := store.ListMessages(ctx, d.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryPort_ReactionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPort()
	d := &v1.Discussion{Title: "t"}
	require.NoError(t, store.CreateDiscussion(ctx, d))
	msg := &v1.Message{DiscussionID: d.ID, Content: "m"}
	require.NoError(t, store.AppendMessage(ctx, msg))

	r := v1.Reaction{MessageID: msg.ID, ParticipantID: "p1", Emoji: "+1"}
	require.NoError(t, store.AddReaction(ctx, msg.ID, r))
	require.NoError(t, store.AddReaction(ctx, msg.ID, r))

	stored := store.messagesByID[msg.ID]
	assert.Len(t, stored.Reactions, 1)
}

func TestMemoryPort_ParticipantLookupByAgentID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPort()
	p := &v1.Participant{DiscussionID: "d1", Type: v1.ParticipantTypeAgent, AgentID: "agent-7", Active: true}
	require.NoError(t, store.CreateParticipant(ctx, p))

	found, err := store.GetParticipantByAgentID(ctx, "d1", "agent-7")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = store.GetParticipantByAgentID(ctx, "d1", "nope")
	assert.Error(t, err)
}
