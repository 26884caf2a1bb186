package history

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRole reports whether value is a known chat role.
func ValidRole(value Role) bool {
	switch value {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Prediction is one persisted symptom-check result.
type Prediction struct {
	ID         string
	UserID     string
	Symptoms   []string
	Age        int
	Gender     string
	ResultJSON string
	Model      string
	CreatedAt  time.Time
}

// Message is one persisted chat transcript entry.
type Message struct {
	ID        string
	UserID    string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Stats aggregates record counts for diagnostics.
type Stats struct {
	Predictions int
	Messages    int
	Users       int
}
