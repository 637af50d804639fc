package turnstrategy

import (
	"strings"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// ContextAware selects the least-recently-spoken eligible participant; if
// the previous message ends with a question directed by @mention, that
// mentioned participant wins instead. Ties go to the earliest participant in
// active order. NextTurn never uses the round_robin fallback; it is used
// only by CanParticipate.
type ContextAware struct {
	fallback *RoundRobin
}

func (c *ContextAware) NextTurn(d *v1.Discussion, active []*v1.Participant, lastMessage *v1.Message) Decision {
	if len(active) == 0 {
		return Decision{TurnNumber: d.State.TurnNumber + 1}
	}

	if lastMessage != nil {
		if mentioned := mentionedParticipant(lastMessage.Content, active); mentioned != nil {
			return Decision{
				NextParticipantID:       mentioned.ID,
				TurnNumber:              d.State.TurnNumber + 1,
				EstimatedDurationSeconds: d.Settings.TurnTimeout,
			}
		}
	}

	least := active[0]
	for _, p := range active[1:] {
		if p.LastMessageTime.Before(least.LastMessageTime) {
			least = p
		}
	}
	return Decision{
		NextParticipantID:       least.ID,
		TurnNumber:              d.State.TurnNumber + 1,
		EstimatedDurationSeconds: d.Settings.TurnTimeout,
	}
}

// mentionedParticipant looks for an "@displayName" mention of an active
// participant anywhere in a message that ends with a question mark.
func mentionedParticipant(content string, active []*v1.Participant) *v1.Participant {
	trimmed := strings.TrimSpace(content)
	if !strings.HasSuffix(trimmed, "?") {
		return nil
	}
	for _, p := range active {
		if p.DisplayName != "" && strings.Contains(trimmed, "@"+p.DisplayName) {
			return p
		}
	}
	return nil
}

func (c *ContextAware) CanParticipate(d *v1.Discussion, participantID string) bool {
	return c.fallback.CanParticipate(d, participantID)
}

func (c *ContextAware) ValidateConfig(v1.TurnStrategyConfig, []*v1.Participant) error {
	return nil
}
