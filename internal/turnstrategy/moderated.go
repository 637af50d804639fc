package turnstrategy

import (
	"github.com/kandev/discussord/internal/apierrors"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// Moderated keeps the turn with a fixed moderator participant; other
// participants request turns and are queued. The moderator hands control
// out one at a time and end-of-turn always returns control to the
// moderator.
type Moderated struct {
	ModeratorParticipantID string
}

func (m *Moderated) NextTurn(d *v1.Discussion, active []*v1.Participant, _ *v1.Message) Decision {
	// Control returns to the moderator unless there's a queued requester
	// and the moderator currently holds the turn.
	if d.State.CurrentTurn.ParticipantID == m.ModeratorParticipantID && len(d.TurnStrategy.Queue) > 0 {
		nextID := d.TurnStrategy.Queue[0]
		if indexOf(active, nextID) >= 0 {
			return Decision{
				NextParticipantID:       nextID,
				TurnNumber:              d.State.TurnNumber + 1,
				EstimatedDurationSeconds: d.Settings.TurnTimeout,
			}
		}
	}
	if indexOf(active, m.ModeratorParticipantID) < 0 {
		// Moderator no longer active — no eligible next participant.
		return Decision{TurnNumber: d.State.TurnNumber + 1}
	}
	return Decision{
		NextParticipantID:       m.ModeratorParticipantID,
		TurnNumber:              d.State.TurnNumber + 1,
		EstimatedDurationSeconds: d.Settings.TurnTimeout,
	}
}

func (m *Moderated) CanParticipate(d *v1.Discussion, participantID string) bool {
	return d.State.CurrentTurn.ParticipantID == participantID
}

func (m *Moderated) ValidateConfig(cfg v1.TurnStrategyConfig, _ []*v1.Participant) error {
	if cfg.ModeratorParticipantID == "" {
		return apierrors.InvalidConfig("moderated strategy requires a moderator participant id")
	}
	return nil
}
