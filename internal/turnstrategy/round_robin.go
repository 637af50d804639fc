package turnstrategy

import v1 "github.com/kandev/discussord/pkg/api/v1"

// RoundRobin rotates deterministically over active participants in stable
// insertion order. Removing a participant closes the gap automatically
// since the rotation is computed fresh from the current active slice each
// call, never from a stored index.
type RoundRobin struct{}

func (r *RoundRobin) NextTurn(d *v1.Discussion, active []*v1.Participant, _ *v1.Message) Decision {
	if len(active) == 0 {
		return Decision{TurnNumber: d.State.TurnNumber + 1}
	}
	cur := indexOf(active, d.State.CurrentTurn.ParticipantID)
	next := 0
	if cur >= 0 {
		next = (cur + 1) % len(active)
	}
	return Decision{
		NextParticipantID:       active[next].ID,
		TurnNumber:              d.State.TurnNumber + 1,
		EstimatedDurationSeconds: d.Settings.TurnTimeout,
	}
}

func (r *RoundRobin) CanParticipate(d *v1.Discussion, participantID string) bool {
	return d.State.CurrentTurn.ParticipantID == "" || d.State.CurrentTurn.ParticipantID == participantID
}

func (r *RoundRobin) ValidateConfig(v1.TurnStrategyConfig, []*v1.Participant) error {
	return nil
}
