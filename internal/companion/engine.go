// Package companion is the single entry point the transport layer talks to.
// It composes the roster, session store, response cache and dispatch queue
// into one SendMessage operation.
package companion

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/internal/emotion"
	"github.com/chenmingyu/reverie/backend/internal/model/chat"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

var (
	ErrEmptyMessage      = errors.New("message text is required")
	ErrCharacterNotFound = session.ErrCharacterNotFound
)

// Config tunes the engine's request budget and default model.
type Config struct {
	Model         string
	RequestBudget time.Duration
}

// Engine wires the companion subsystems together. Construct once at startup
// and share; all methods are safe for concurrent use.
type Engine struct {
	roster    character.Store
	sessions  *session.Store
	responses *cache.Cache
	queue     *dispatch.Queue

	model  string
	budget time.Duration
}

// New assembles an Engine and registers the queue's cancellation hook on
// the session store so closed or evicted sessions never leave a caller
// hanging.
func New(cfg Config, roster character.Store, sessions *session.Store, responses *cache.Cache, queue *dispatch.Queue) *Engine {
	budget := cfg.RequestBudget
	if budget <= 0 {
		budget = 30 * time.Second
	}
	e := &Engine{
		roster:    roster,
		sessions:  sessions,
		responses: responses,
		queue:     queue,
		model:     cfg.Model,
		budget:    budget,
	}
	sessions.SetCloseHook(func(sessionID string) {
		queue.Cancel(sessionID)
		responses.InvalidateSession(sessionID)
	})
	return e
}

// SendMessage accepts one user turn and returns the completion handle the
// caller suspends on. Cache hits resolve immediately; misses queue a
// generation request. speakerName is set only in group rooms.
func (e *Engine) SendMessage(ctx context.Context, sessionID, characterID, speakerName, text string) (*dispatch.Handle, error) {
	if cache.Normalize(text) == "" {
		return nil, ErrEmptyMessage
	}
	char, ok := e.roster.FindByID(characterID)
	if !ok {
		return nil, ErrCharacterNotFound
	}

	sess, err := e.sessions.GetOrCreate(sessionID, characterID, e.model)
	if err != nil {
		return nil, err
	}

	fp := cache.Fingerprint(sessionID, text, sess.Model, sess.Emotion)
	if entry, hit := e.responses.Lookup(fp); hit {
		return e.replay(sessionID, speakerName, text, char.Name, entry)
	}

	if _, err := e.sessions.AppendMessage(sessionID, chat.Message{
		Role:        chat.RoleUser,
		Content:     text,
		SpeakerName: speakerName,
	}); err != nil {
		return nil, err
	}

	mood := emotion.Next(sess.Emotion, text)
	if err := e.sessions.SetEmotion(sessionID, mood); err != nil {
		return nil, err
	}

	priority := dispatch.PriorityDirect
	if speakerName != "" {
		priority = dispatch.PriorityGroup
	}

	handle, err := e.queue.Enqueue(&dispatch.Request{
		SessionID:     sessionID,
		CharacterID:   characterID,
		CharacterName: char.Name,
		Text:          text,
		SpeakerName:   speakerName,
		Priority:      priority,
		Mood:          mood,
		Fingerprint:   fp,
		Deadline:      time.Now().Add(e.budget),
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// replay serves a cached reply. The only side effect is recording both
// turns in the history so later prompts keep their context.
func (e *Engine) replay(sessionID, speakerName, text, characterName string, entry cache.Entry) (*dispatch.Handle, error) {
	if _, err := e.sessions.AppendMessage(sessionID, chat.Message{
		Role:        chat.RoleUser,
		Content:     text,
		SpeakerName: speakerName,
	}); err != nil {
		return nil, err
	}
	if _, err := e.sessions.AppendMessage(sessionID, chat.Message{
		Role:        chat.RoleAssistant,
		Content:     entry.Text,
		SpeakerName: characterName,
		Emotion:     string(entry.Emotion),
	}); err != nil {
		return nil, err
	}
	log.Printf("[companion] cache hit for session=%s", sessionID)
	return dispatch.Completed(dispatch.Result{
		Outcome: dispatch.OutcomeSuccess,
		Reply:   entry.Text,
		Emotion: entry.Emotion,
		Cached:  true,
	}), nil
}

// Chat is the synchronous form of SendMessage: it waits for the reply.
func (e *Engine) Chat(ctx context.Context, sessionID, characterID, speakerName, text string) (dispatch.Result, error) {
	handle, err := e.SendMessage(ctx, sessionID, characterID, speakerName, text)
	if err != nil {
		return dispatch.Result{}, err
	}
	return handle.Wait(ctx)
}

// Touch refreshes a session's activity clock. The WebSocket transport calls
// it on connect so an idle-but-connected session is not swept away.
func (e *Engine) Touch(sessionID string) {
	e.sessions.Touch(sessionID)
}

// Session exposes a read-only snapshot of a live session.
func (e *Engine) Session(sessionID string) (chat.Session, error) {
	return e.sessions.Get(sessionID)
}

// CloseSession tears a session down: queued work is cancelled and its cache
// entries flushed via the close hook.
func (e *Engine) CloseSession(sessionID string) error {
	return e.sessions.Close(sessionID)
}

// EvictIdle removes sessions idle past threshold; invoked periodically by
// the scheduler in cmd/api.
func (e *Engine) EvictIdle(now time.Time, threshold time.Duration) []string {
	evicted := e.sessions.EvictIdle(now, threshold)
	if len(evicted) > 0 {
		log.Printf("[companion] evicted %d idle session(s)", len(evicted))
	}
	return evicted
}
