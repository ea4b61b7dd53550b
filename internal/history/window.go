// Package history bounds per-session conversation transcripts so prompts
// stay within the generation backend's context budget.
package history

import "github.com/chenmingyu/reverie/backend/internal/model/chat"

// DefaultWindowSize is the number of retained turns when no bound is
// configured. The pinned system turn counts toward the bound but is never
// the one dropped.
const DefaultWindowSize = 24

// Append appends msg and trims the transcript to at most max turns.
// The oldest non-system turns drop first; a leading system/persona turn is
// pinned and survives every trim.
func Append(msgs []chat.Message, msg chat.Message, max int) []chat.Message {
	return Trim(append(msgs, msg), max)
}

// Trim enforces the window bound on an existing transcript.
func Trim(msgs []chat.Message, max int) []chat.Message {
	if max <= 0 {
		max = DefaultWindowSize
	}
	if len(msgs) <= max {
		return msgs
	}

	if msgs[0].Role == chat.RoleSystem {
		keep := max - 1
		trimmed := make([]chat.Message, 0, max)
		trimmed = append(trimmed, msgs[0])
		trimmed = append(trimmed, msgs[len(msgs)-keep:]...)
		return trimmed
	}
	return msgs[len(msgs)-max:]
}
