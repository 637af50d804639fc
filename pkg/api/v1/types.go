// Package v1 defines the wire types exchanged across the Discussion
// Orchestration Core's command surface: discussions, participants,
// messages, and events. Types here carry json tags only; they own no
// behavior.
package v1

import "time"

// DiscussionStatus is the closed set of lifecycle states a Discussion may be in.
type DiscussionStatus string

const (
	DiscussionStatusDraft      DiscussionStatus = "draft"
	DiscussionStatusActive     DiscussionStatus = "active"
	DiscussionStatusPaused     DiscussionStatus = "paused"
	DiscussionStatusCompleted  DiscussionStatus = "completed"
	DiscussionStatusArchived   DiscussionStatus = "archived"
	DiscussionStatusCancelled  DiscussionStatus = "cancelled"
)

// ParticipantType distinguishes human from agent seats in a discussion.
type ParticipantType string

const (
	ParticipantTypeAgent ParticipantType = "agent"
	ParticipantTypeUser  ParticipantType = "user"
)

// MessageType is the normalized, closed enumeration of message kinds.
// Unknown inputs degrade to MessageTypeMessage.
type MessageType string

const (
	MessageTypeMessage      MessageType = "message"
	MessageTypeQuestion     MessageType = "question"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeClarification MessageType = "clarification"
	MessageTypeObjection    MessageType = "objection"
	MessageTypeAgreement    MessageType = "agreement"
	MessageTypeSummary      MessageType = "summary"
	MessageTypeDecision     MessageType = "decision"
	MessageTypeActionItem   MessageType = "action_item"
	MessageTypeSystem       MessageType = "system"
)

var validMessageTypes = map[MessageType]bool{
	MessageTypeMessage: true, MessageTypeQuestion: true, MessageTypeAnswer: true,
	MessageTypeClarification: true, MessageTypeObjection: true, MessageTypeAgreement: true,
	MessageTypeSummary: true, MessageTypeDecision: true, MessageTypeActionItem: true,
	MessageTypeSystem: true,
}

// NormalizeMessageType maps an arbitrary caller-supplied type to the closed
// enumeration, falling back to MessageTypeMessage for anything unrecognized.
func NormalizeMessageType(t MessageType) MessageType {
	if validMessageTypes[t] {
		return t
	}
	return MessageTypeMessage
}

// TurnStrategyKind identifies a pluggable turn-taking policy.
type TurnStrategyKind string

const (
	TurnStrategyRoundRobin   TurnStrategyKind = "round_robin"
	TurnStrategyContextAware TurnStrategyKind = "context_aware"
	TurnStrategyModerated    TurnStrategyKind = "moderated"
	TurnStrategyFreeForm     TurnStrategyKind = "free_form"
)

// TurnStrategyConfig is a tagged variant; only the fields relevant to Kind
// are meaningful. OrderSeed is carried for round_robin but the rotation does
// not read it (order is join order); ModeratorParticipantID and Queue are
// moderated-only.
type TurnStrategyConfig struct {
	Kind                   TurnStrategyKind `json:"kind"`
	OrderSeed              string           `json:"orderSeed,omitempty"`
	ModeratorParticipantID string           `json:"moderatorParticipantId,omitempty"`
	Queue                  []string         `json:"queue,omitempty"`
}

// Settings holds per-discussion recognized options, with spec-defined defaults.
type Settings struct {
	MaxParticipants int  `json:"maxParticipants"`
	TurnTimeout     int  `json:"turnTimeout"` // seconds
	MaxMessages     int  `json:"maxMessages"`
	AutoModeration  bool `json:"autoModeration"`
	AllowReactions  bool `json:"allowReactions"`
}

// DefaultSettings returns the spec §6 defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxParticipants: 10,
		TurnTimeout:     10,
		MaxMessages:     100,
		AutoModeration:  false,
		AllowReactions:  true,
	}
}

// CurrentTurn describes the active turn, if any.
type CurrentTurn struct {
	ParticipantID string `json:"participantId,omitempty"`
}

// RuntimeState is the mutable, frequently-updated part of a Discussion.
type RuntimeState struct {
	CurrentTurn        CurrentTurn `json:"currentTurn"`
	TurnNumber         int         `json:"turnNumber"`
	TurnStartTime      time.Time   `json:"turnStartTime,omitempty"`
	ExpectedEndTime    time.Time   `json:"expectedEndTime,omitempty"`
	Phase              string      `json:"phase,omitempty"`
	MessageCount       int         `json:"messageCount"`
	LastActivity       time.Time   `json:"lastActivity"`
}

// Discussion is the root entity: a multi-turn conversation with lifecycle
// and participants. Identity is an opaque ID; never embed pointers to
// participants or messages — reference by id only (see DESIGN.md open
// question on id resolution).
type Discussion struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Topic       string                 `json:"topic"`
	Description string                 `json:"description"`
	CreatorID   string                 `json:"creatorId"`
	Status      DiscussionStatus       `json:"status"`
	TurnStrategy TurnStrategyConfig    `json:"turnStrategy"`
	Settings    Settings               `json:"settings"`
	State       RuntimeState           `json:"state"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// Participant is a seat in a discussion, owned by either a user or an agent.
type Participant struct {
	ID               string    `json:"id"`
	DiscussionID     string    `json:"discussionId"`
	Type             ParticipantType `json:"type"`
	AgentID          string    `json:"agentId,omitempty"`
	UserID           string    `json:"userId,omitempty"`
	Role             string    `json:"role,omitempty"`
	DisplayName      string    `json:"displayName"`
	Active           bool      `json:"active"`
	MessageCount     int       `json:"messageCount"`
	LastMessageTime  time.Time `json:"lastMessageTime,omitempty"`
	ContributionScore float64  `json:"contributionScore"`
	EngagementLevel  float64   `json:"engagementLevel"`
	CreatedAt        time.Time `json:"createdAt"`
	// Seq is a monotonically increasing join order, assigned by the store on
	// creation. round_robin's "stable insertion order" and the introduction
	// phase's "first never-spoken agent" both key off this rather than
	// CreatedAt, since two participants created within the same clock tick
	// would otherwise compare equal.
	Seq int64 `json:"-"`
}

// Message is an append-only record of a single turn's contribution.
type Message struct {
	ID            string                 `json:"id"`
	DiscussionID  string                 `json:"discussionId"`
	ParticipantID string                 `json:"participantId"`
	Content       string                 `json:"content"`
	Type          MessageType            `json:"type"`
	CreatedAt     time.Time              `json:"createdAt"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Reactions     []Reaction             `json:"reactions,omitempty"`
}

// Reaction records a participant's emoji reaction to a message.
type Reaction struct {
	MessageID     string    `json:"messageId"`
	ParticipantID string    `json:"participantId"`
	Emoji         string    `json:"emoji"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EventType is the closed set of event kinds the core emits.
type EventType string

const (
	EventStatusChanged     EventType = "status_changed"
	EventTurnChanged       EventType = "turn_changed"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventMessageSent       EventType = "message_sent"
	EventReactionAdded     EventType = "reaction_added"
)

// Event is an immutable record of a discussion state change.
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	DiscussionID string                 `json:"discussionId"`
	Data         map[string]interface{} `json:"data"`
	Timestamp    time.Time              `json:"timestamp"`
	Source       string                 `json:"source"`
}
