package turnstrategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

func discussionWithTurn(participantID string) *v1.Discussion {
	return &v1.Discussion{
		Settings: v1.Settings{TurnTimeout: 10},
		State:    v1.RuntimeState{CurrentTurn: v1.CurrentTurn{ParticipantID: participantID}, TurnNumber: 1},
	}
}

func TestRoundRobin_RotatesInOrder(t *testing.T) {
	active := []*v1.Participant{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	s := &RoundRobin{}

	d := discussionWithTurn("a")
	decision := s.NextTurn(d, active, nil)
	assert.Equal(t, "b", decision.NextParticipantID)

	d = discussionWithTurn("c")
	decision = s.NextTurn(d, active, nil)
	assert.Equal(t, "a", decision.NextParticipantID, "rotation wraps around")
}

func TestRoundRobin_ClosesGapOnRemoval(t *testing.T) {
	active := []*v1.Participant{{ID: "a"}, {ID: "c"}} // b removed
	s := &RoundRobin{}
	d := discussionWithTurn("a")
	decision := s.NextTurn(d, active, nil)
	assert.Equal(t, "c", decision.NextParticipantID)
}

func TestModerated_ValidateConfigRequiresModerator(t *testing.T) {
	s := &Moderated{}
	err := s.ValidateConfig(v1.TurnStrategyConfig{Kind: v1.TurnStrategyModerated}, nil)
	require.Error(t, err)
}

func TestModerated_ReturnsControlToModerator(t *testing.T) {
	s := &Moderated{ModeratorParticipantID: "mod"}
	active := []*v1.Participant{{ID: "mod"}, {ID: "u1"}}
	d := discussionWithTurn("u1")
	decision := s.NextTurn(d, active, nil)
	assert.Equal(t, "mod", decision.NextParticipantID)
}

func TestFreeForm_AlwaysAllowsParticipation(t *testing.T) {
	s := &FreeForm{}
	assert.True(t, s.CanParticipate(discussionWithTurn("a"), "b"))
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New(v1.TurnStrategyConfig{Kind: "bogus"})
	require.Error(t, err)
}
