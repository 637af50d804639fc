// Package storage defines the Storage Port (spec §4.10): a narrow interface
// to an external store. The core ships only an in-memory reference
// implementation — persistence itself is explicitly out of scope.
package storage

import (
	"context"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// SearchFilter narrows a discussion search. Zero-value fields are ignored.
type SearchFilter struct {
	Status    v1.DiscussionStatus
	CreatorID string
	Limit     int
}

// Port is the narrow, concurrency-safe interface the core depends on for
// all persisted state. Every method must be safe to call concurrently.
type Port interface {
	CreateDiscussion(ctx context.Context, d *v1.Discussion) error
	GetDiscussion(ctx context.Context, id string) (*v1.Discussion, error)
	UpdateDiscussion(ctx context.Context, d *v1.Discussion) error
	SearchDiscussions(ctx context.Context, filter SearchFilter) ([]*v1.Discussion, error)

	AppendMessage(ctx context.Context, m *v1.Message) error
	ListMessages(ctx context.Context, discussionID string, limit int) ([]*v1.Message, error)
	AddReaction(ctx context.Context, messageID string, r v1.Reaction) error

	CreateParticipant(ctx context.Context, p *v1.Participant) error
	UpdateParticipant(ctx context.Context, p *v1.Participant) error
	GetParticipant(ctx context.Context, id string) (*v1.Participant, error)
	GetParticipantByAgentID(ctx context.Context, discussionID, agentID string) (*v1.Participant, error)
	GetActiveParticipants(ctx context.Context, discussionID string) ([]*v1.Participant, error)
}
