package chat

import (
	"time"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
)

// Session is one ongoing conversation between one or more users and a
// character. History is append-only and bounded by the window manager;
// Participants tracks named speakers in group rooms.
type Session struct {
	ID           string              `json:"id"`
	CharacterID  string              `json:"characterId"`
	Model        string              `json:"model"`
	Emotion      emotion.Emotion     `json:"emotion"`
	History      []Message           `json:"history"`
	Participants map[string]struct{} `json:"-"`
	CreatedAt    time.Time           `json:"createdAt"`
	LastActive   time.Time           `json:"lastActive"`
}
