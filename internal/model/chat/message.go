package chat

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable turn in a conversation. SpeakerName is set in
// group rooms so the prompt can attribute lines correctly.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	SpeakerName string    `json:"speakerName,omitempty"`
	Emotion     string    `json:"emotion,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
