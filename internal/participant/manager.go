// Package participant implements the Participant Manager (spec §4.5):
// lookup by participant id or agent id, activity counters, active-set
// queries. All reads/writes go through the Storage Port; the Orchestrator
// never reaches into the store directly for participants. Grounded on the
// teacher's agent/lifecycle.Manager activity-tracking conventions.
package participant

import (
	"context"
	"time"

	"github.com/kandev/discussord/internal/apierrors"
	"github.com/kandev/discussord/internal/storage"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// Manager mediates all participant reads and writes through a Storage Port.
type Manager struct {
	store storage.Port
}

// New constructs a Manager over store.
func New(store storage.Port) *Manager {
	return &Manager{store: store}
}

// ByID resolves a participant by its own id.
func (m *Manager) ByID(ctx context.Context, id string) (*v1.Participant, error) {
	p, err := m.store.GetParticipant(ctx, id)
	if err != nil {
		return nil, apierrors.ParticipantNotFound("participant not found: " + id)
	}
	return p, nil
}

// ByAgentID resolves a participant by the (discussionID, agentID) pair.
func (m *Manager) ByAgentID(ctx context.Context, discussionID, agentID string) (*v1.Participant, error) {
	p, err := m.store.GetParticipantByAgentID(ctx, discussionID, agentID)
	if err != nil {
		return nil, apierrors.ParticipantNotFound("participant not found for agent: " + agentID)
	}
	return p, nil
}

// Resolve implements the spec's explicit id-resolution order (§9 open
// question, pinned in SPEC_FULL §12): try participantOrAgentID as a
// participant id first, then fall back to treating it as an agent id
// scoped to discussionID. It never silently accepts an arbitrary id.
func (m *Manager) Resolve(ctx context.Context, discussionID, participantOrAgentID string) (*v1.Participant, error) {
	if p, err := m.ByID(ctx, participantOrAgentID); err == nil && p.DiscussionID == discussionID {
		return p, nil
	}
	return m.ByAgentID(ctx, discussionID, participantOrAgentID)
}

// ActiveOf returns every active participant of discussionID.
func (m *Manager) ActiveOf(ctx context.Context, discussionID string) ([]*v1.Participant, error) {
	ps, err := m.store.GetActiveParticipants(ctx, discussionID)
	if err != nil {
		return nil, apierrors.StoreError(err)
	}
	return ps, nil
}

// Create adds a new participant row, tombstoning is handled by Remove, not
// deletion.
func (m *Manager) Create(ctx context.Context, p *v1.Participant) error {
	p.Active = true
	if err := m.store.CreateParticipant(ctx, p); err != nil {
		return apierrors.StoreError(err)
	}
	return nil
}

// Remove tombstones a participant: it stops being active but its row and
// history remain.
func (m *Manager) Remove(ctx context.Context, id string) error {
	p, err := m.ByID(ctx, id)
	if err != nil {
		return err
	}
	p.Active = false
	if err := m.store.UpdateParticipant(ctx, p); err != nil {
		return apierrors.StoreError(err)
	}
	return nil
}

// UpdateActivity applies the spec §4.7 additive activity update: message
// count and contribution score increase by delta, engagement increases by
// 0.1*delta bounded at 1.0, and last-message time advances to now.
func (m *Manager) UpdateActivity(ctx context.Context, participantID string, delta int) error {
	p, err := m.ByID(ctx, participantID)
	if err != nil {
		return err
	}
	p.MessageCount += delta
	p.ContributionScore += float64(delta)
	p.EngagementLevel += 0.1 * float64(delta)
	if p.EngagementLevel > 1.0 {
		p.EngagementLevel = 1.0
	}
	p.LastMessageTime = time.Now().UTC()
	if err := m.store.UpdateParticipant(ctx, p); err != nil {
		return apierrors.StoreError(err)
	}
	return nil
}
