package session

import "time"

// DefaultPlaceholder is the label a session carries until one is generated.
const DefaultPlaceholder = "New Conversation"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session is the durable record of one conversation and its label.
type Session struct {
	ID                       string    `json:"session_id"`
	OwnerID                  string    `json:"owner_id"`
	Label                    string    `json:"label"`
	MessageCount             int       `json:"message_count"`
	LabelGenerationAttempted bool      `json:"label_generation_attempted"`
	LabelManual              bool      `json:"label_manual"` // set by a user rename; the pipeline never overwrites it
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Message is one turn of a conversation. Position is the 0-based ordinal within the session.
type Message struct {
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Position  int    `json:"position"`
}

// Summary is one row of an owner's session list.
type Summary struct {
	ID           string    `json:"session_id" yaml:"session_id"`
	OwnerID      string    `json:"owner_id" yaml:"owner_id"`
	Label        string    `json:"label" yaml:"label"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// ValidRole reports whether r is one of the known message roles.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
