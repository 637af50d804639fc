package turnstrategy

import v1 "github.com/kandev/discussord/pkg/api/v1"

// FreeForm imposes no turn-ownership check at all — any active participant
// may post at any time. NextTurn is meaningful only for trigger selection:
// it returns the previous speaker's antipode, the agent who has spoken
// least recently.
type FreeForm struct{}

func (f *FreeForm) NextTurn(d *v1.Discussion, active []*v1.Participant, lastMessage *v1.Message) Decision {
	if len(active) == 0 {
		return Decision{TurnNumber: d.State.TurnNumber + 1}
	}
	candidates := active
	if lastMessage != nil {
		var filtered []*v1.Participant
		for _, p := range active {
			if p.ID != lastMessage.ParticipantID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	least := candidates[0]
	for _, p := range candidates[1:] {
		if p.LastMessageTime.Before(least.LastMessageTime) {
			least = p
		}
	}
	return Decision{NextParticipantID: least.ID, TurnNumber: d.State.TurnNumber + 1}
}

func (f *FreeForm) CanParticipate(*v1.Discussion, string) bool { return true }

func (f *FreeForm) ValidateConfig(v1.TurnStrategyConfig, []*v1.Participant) error { return nil }
