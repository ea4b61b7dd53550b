package generate

import (
	"github.com/cloudwego/eino/schema"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
	"github.com/chenmingyu/reverie/backend/internal/model/chat"
)

// BuildPrompt turns the bounded conversation window and the session's
// current emotion into the ordered message list sent to the backend. The
// window already ends with the pending user turn. The pinned system turn,
// if present, leads and is annotated with mood guidance so phrasing tracks
// the companion's state.
func BuildPrompt(window []chat.Message, mood emotion.Emotion) []*schema.Message {
	prompt := make([]*schema.Message, 0, len(window)+1)

	start := 0
	if len(window) > 0 && window[0].Role == chat.RoleSystem {
		prompt = append(prompt, schema.SystemMessage(window[0].Content+"\n\n"+moodGuidance(mood)))
		start = 1
	} else {
		prompt = append(prompt, schema.SystemMessage(moodGuidance(mood)))
	}

	for _, msg := range window[start:] {
		switch msg.Role {
		case chat.RoleUser:
			prompt = append(prompt, schema.UserMessage(attribute(msg.SpeakerName, msg.Content)))
		case chat.RoleAssistant:
			prompt = append(prompt, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return prompt
}

// attribute prefixes group-chat lines with the speaker so the model can
// address participants by name.
func attribute(speakerName, content string) string {
	if speakerName == "" {
		return content
	}
	return speakerName + ": " + content
}

func moodGuidance(mood emotion.Emotion) string {
	switch mood {
	case emotion.Happy:
		return "Current mood: happy. Keep the tone bright and playful, share in the good news."
	case emotion.Sad:
		return "Current mood: sad. Be gentle and consoling, slow the pace, acknowledge the feeling."
	case emotion.Angry:
		return "Current mood: angry. Stay calm and steady, de-escalate before anything else."
	case emotion.Flirty:
		return "Current mood: flirty. Be warm and teasing without losing the character's voice."
	default:
		return "Current mood: neutral. Keep the tone natural, attentive and in character."
	}
}
