package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// MemoryPort is an in-memory reference implementation of Port, grounded on
// the teacher's MemoryRepository (sync.RWMutex-protected maps, uuid-
// generated ids, "not found" sentinel errors).
type MemoryPort struct {
	mu           sync.RWMutex
	discussions  map[string]*v1.Discussion
	messages     map[string][]*v1.Message // discussionID -> messages, append order
	messagesByID map[string]*v1.Message
	participants map[string]*v1.Participant
	participantSeq int64
}

var _ Port = (*MemoryPort)(nil)

// NewMemoryPort constructs an empty in-memory storage port.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{
		discussions:  make(map[string]*v1.Discussion),
		messages:     make(map[string][]*v1.Message),
		messagesByID: make(map[string]*v1.Message),
		participants: make(map[string]*v1.Participant),
	}
}

func copyDiscussion(d *v1.Discussion) *v1.Discussion {
	cp := *d
	if d.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (m *MemoryPort) CreateDiscussion(_ context.Context, d *v1.Discussion) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.discussions[d.ID]; exists {
		return fmt.Errorf("discussion already exists: %s", d.ID)
	}
	m.discussions[d.ID] = copyDiscussion(d)
	return nil
}

func (m *MemoryPort) GetDiscussion(_ context.Context, id string) (*v1.Discussion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.discussions[id]
	if !ok {
		return nil, fmt.Errorf("discussion not found: %s", id)
	}
	return copyDiscussion(d), nil
}

func (m *MemoryPort) UpdateDiscussion(_ context.Context, d *v1.Discussion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.discussions[d.ID]; !ok {
		return fmt.Errorf("discussion not found: %s", d.ID)
	}
	d.UpdatedAt = time.Now().UTC()
	m.discussions[d.ID] = copyDiscussion(d)
	return nil
}

func (m *MemoryPort) SearchDiscussions(_ context.Context, filter SearchFilter) ([]*v1.Discussion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*v1.Discussion
	for _, d := range m.discussions {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.CreatorID != "" && d.CreatorID != filter.CreatorID {
			continue
		}
		out = append(out, copyDiscussion(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryPort) AppendMessage(_ context.Context, msg *v1.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.DiscussionID] = append(m.messages[msg.DiscussionID], &cp)
	m.messagesByID[msg.ID] = &cp
	return nil
}

func (m *MemoryPort) ListMessages(_ context.Context, discussionID string, limit int) ([]*v1.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[discussionID]
	if limit <= 0 || limit >= len(all) {
		out := make([]*v1.Message, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]*v1.Message, limit)
	copy(out, all[start:])
	return out, nil
}

func (m *MemoryPort) AddReaction(_ context.Context, messageID string, r v1.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messagesByID[messageID]
	if !ok {
		return fmt.Errorf("message not found: %s", messageID)
	}
	for _, existing := range msg.Reactions {
		if existing.ParticipantID == r.ParticipantID && existing.Emoji == r.Emoji {
			return nil // idempotent: repeat reaction is a no-op
		}
	}
	msg.Reactions = append(msg.Reactions, r)
	return nil
}

func (m *MemoryPort) CreateParticipant(_ context.Context, p *v1.Participant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participantSeq++
	p.Seq = m.participantSeq
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (m *MemoryPort) UpdateParticipant(_ context.Context, p *v1.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.ID]; !ok {
		return fmt.Errorf("participant not found: %s", p.ID)
	}
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (m *MemoryPort) GetParticipant(_ context.Context, id string) (*v1.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant not found: %s", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryPort) GetParticipantByAgentID(_ context.Context, discussionID, agentID string) (*v1.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.participants {
		if p.DiscussionID == discussionID && p.Type == v1.ParticipantTypeAgent && p.AgentID == agentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("participant not found for agent: %s", agentID)
}

func (m *MemoryPort) GetActiveParticipants(_ context.Context, discussionID string) ([]*v1.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*v1.Participant
	for _, p := range m.participants {
		if p.DiscussionID == discussionID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	// Map iteration order is randomized; round_robin's stable insertion
	// order and the trigger's introduction-phase "first never-spoken
	// agent" both depend on a deterministic ordering here.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
