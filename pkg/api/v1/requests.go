package v1

// CreateDiscussionRequest is the input to createDiscussion.
type CreateDiscussionRequest struct {
	Title        string
	Topic        string
	Description  string
	TurnStrategy TurnStrategyConfig
	Settings     *Settings // nil means DefaultSettings()
	Participants []ParticipantSpec
	Metadata     map[string]interface{}
}

// ParticipantSpec describes a participant to add at creation or via addParticipant.
type ParticipantSpec struct {
	Type        ParticipantType
	AgentID     string
	UserID      string
	Role        string
	DisplayName string
}

// Result is the discriminated command result every Orchestrator operation returns.
// Exactly one of the success or failure fields is meaningful, selected by Success.
type Result struct {
	Success   bool
	Data      interface{}
	Events    []Event
	ErrorKind ErrorKind
	Message   string
}

// ErrorKind is the closed set of error kinds surfaced to callers (spec §7).
type ErrorKind string

const (
	ErrNotFound             ErrorKind = "NOT_FOUND"
	ErrInvalidState         ErrorKind = "INVALID_STATE"
	ErrInvalidConfig        ErrorKind = "INVALID_CONFIG"
	ErrParticipantNotFound  ErrorKind = "PARTICIPANT_NOT_FOUND"
	ErrParticipantInactive  ErrorKind = "PARTICIPANT_INACTIVE"
	ErrNotYourTurn          ErrorKind = "NOT_YOUR_TURN"
	ErrLimitExceeded        ErrorKind = "LIMIT_EXCEEDED"
	ErrStoreError           ErrorKind = "STORE_ERROR"
	ErrBusError             ErrorKind = "BUS_ERROR"
)

// Status is the Orchestrator's getStatus() payload.
type Status struct {
	Running            bool  `json:"running"`
	ActiveDiscussions  int   `json:"activeDiscussions"`
	TotalTriggered     int64 `json:"totalTriggered"`
	TotalCompleted     int64 `json:"totalCompleted"`
	UptimeSeconds      int64 `json:"uptimeSeconds"`
}
