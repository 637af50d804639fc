// Package turnstrategy implements the pluggable Turn Strategy (spec §4.6):
// round_robin, context_aware, moderated, and free_form policies, each
// choosing the next turn owner from a discussion's active participants.
// Grounded on the multiple-named-implementations-of-one-interface pattern
// seen in the pack's turn-executor reference code.
package turnstrategy

import (
	"github.com/kandev/discussord/internal/apierrors"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// Decision is the result of asking a strategy for the next turn.
type Decision struct {
	NextParticipantID        string
	TurnNumber                int
	EstimatedDurationSeconds  int
}

// Strategy is the polymorphic turn-taking contract every kind implements.
type Strategy interface {
	// NextTurn picks the next turn owner given the discussion and its
	// currently active participants (stable insertion order), plus the
	// most recent message if any (nil if none has been sent yet).
	NextTurn(d *v1.Discussion, active []*v1.Participant, lastMessage *v1.Message) Decision

	// CanParticipate reports whether sender may post given the current
	// turn owner; free_form always returns true.
	CanParticipate(d *v1.Discussion, participantID string) bool

	// ValidateConfig rejects configuration that cannot be enacted, e.g.
	// moderated without a moderator participant id.
	ValidateConfig(cfg v1.TurnStrategyConfig, active []*v1.Participant) error
}

// New constructs the Strategy named by cfg.Kind.
func New(cfg v1.TurnStrategyConfig) (Strategy, error) {
	switch cfg.Kind {
	case v1.TurnStrategyRoundRobin:
		return &RoundRobin{}, nil
	case v1.TurnStrategyContextAware:
		return &ContextAware{fallback: &RoundRobin{}}, nil
	case v1.TurnStrategyModerated:
		return &Moderated{ModeratorParticipantID: cfg.ModeratorParticipantID}, nil
	case v1.TurnStrategyFreeForm:
		return &FreeForm{}, nil
	default:
		return nil, apierrors.InvalidConfig("unknown turn strategy kind: " + string(cfg.Kind))
	}
}

// indexOf returns the position of id within active, or -1.
func indexOf(active []*v1.Participant, id string) int {
	for i, p := range active {
		if p.ID == id {
			return i
		}
	}
	return -1
}
