// Package session owns every live ChatSession. All mutation funnels through
// the Store so each session has exactly one writer at a time; distinct
// sessions proceed fully in parallel.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
	"github.com/chenmingyu/reverie/backend/internal/history"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/model/chat"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrCharacterNotFound = errors.New("character not found")
)

// CloseHook is invoked for a session that is being closed or evicted, before
// it disappears from the store. The dispatcher registers one to cancel any
// queued or in-flight work so completions never dangle.
type CloseHook func(sessionID string)

type entry struct {
	mu   sync.Mutex
	sess *chat.Session
}

// Store holds live sessions keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	roster     character.Store
	windowSize int
	now        func() time.Time

	hookMu  sync.Mutex
	onClose CloseHook
}

// NewStore returns a Store seeding new sessions from roster and bounding
// histories to windowSize turns.
func NewStore(roster character.Store, windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = history.DefaultWindowSize
	}
	return &Store{
		sessions:   make(map[string]*entry),
		roster:     roster,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// SetCloseHook registers the cancellation hook. At most one hook is held;
// wiring happens once at startup.
func (s *Store) SetCloseHook(hook CloseHook) {
	s.hookMu.Lock()
	s.onClose = hook
	s.hookMu.Unlock()
}

func (s *Store) fireClose(sessionID string) {
	s.hookMu.Lock()
	hook := s.onClose
	s.hookMu.Unlock()
	if hook != nil {
		hook(sessionID)
	}
}

// GetOrCreate returns the session for id, creating it on first use.
// Repeated calls with the same id are idempotent and never reset history.
// New sessions get a pinned system turn built from the character's persona.
func (s *Store) GetOrCreate(id, characterID, model string) (chat.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return s.snapshot(e), nil
	}

	char, ok := s.roster.FindByID(characterID)
	if !ok {
		return chat.Session{}, ErrCharacterNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		return s.snapshot(e), nil
	}

	now := s.now().UTC()
	sess := &chat.Session{
		ID:          id,
		CharacterID: char.ID,
		Model:       model,
		Emotion:     emotion.Neutral,
		History: []chat.Message{{
			ID:        uuid.NewString(),
			SessionID: id,
			Role:      chat.RoleSystem,
			Content:   personaPrompt(char),
			CreatedAt: now,
		}},
		Participants: make(map[string]struct{}),
		CreatedAt:    now,
		LastActive:   now,
	}
	e = &entry{sess: sess}
	s.sessions[id] = e
	return s.snapshot(e), nil
}

// personaPrompt renders the pinned system turn for a character.
func personaPrompt(c character.Character) string {
	prompt := "You are " + c.Name + ", " + c.Title + ". " + c.Personality +
		" Speech style: " + c.SpeechStyle +
		" Stay in character at all times and keep replies conversational."
	if c.Greeting != "" {
		prompt += " Your usual greeting: " + c.Greeting
	}
	return prompt
}

// AppendMessage appends msg to the session's history, enforcing the window
// bound, and returns the updated session.
func (s *Store) AppendMessage(sessionID string, msg chat.Message) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msg.SessionID = sessionID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	e.sess.History = history.Append(e.sess.History, msg, s.windowSize)
	if msg.SpeakerName != "" && msg.Role == chat.RoleUser {
		e.sess.Participants[msg.SpeakerName] = struct{}{}
	}
	e.sess.LastActive = s.now().UTC()
	return s.copySession(e.sess), nil
}

// SetEmotion records the session's current emotion. Unknown labels fall back
// to neutral so a classifier hiccup never blocks delivery.
func (s *Store) SetEmotion(sessionID string, mood emotion.Emotion) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	if !mood.Valid() {
		mood = emotion.Neutral
	}

	e.mu.Lock()
	e.sess.Emotion = mood
	e.mu.Unlock()
	return nil
}

// Touch refreshes the session's last-activity timestamp without recording a
// turn, so a reconnecting client is not evicted mid-handshake.
func (s *Store) Touch(sessionID string) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.sess.LastActive = s.now().UTC()
	e.mu.Unlock()
}

// Get returns a snapshot of the session.
func (s *Store) Get(sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return s.snapshot(e), nil
}

// Exists reports whether sessionID is live.
func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Close removes the session and fires the close hook so pending dispatches
// complete with a cancelled outcome.
func (s *Store) Close(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.fireClose(sessionID)
	return nil
}

// EvictIdle removes every session idle since before now-idle and returns the
// evicted ids. The close hook fires for each before removal is reported.
func (s *Store) EvictIdle(now time.Time, idle time.Duration) []string {
	cutoff := now.Add(-idle)

	s.mu.Lock()
	var evicted []string
	for id, e := range s.sessions {
		e.mu.Lock()
		stale := e.sess.LastActive.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.fireClose(id)
	}
	return evicted
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Store) snapshot(e *entry) chat.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.copySession(e.sess)
}

// copySession clones the session so callers never share mutable state with
// the store. Callers must hold e.mu.
func (s *Store) copySession(sess *chat.Session) chat.Session {
	out := *sess
	out.History = append([]chat.Message(nil), sess.History...)
	out.Participants = make(map[string]struct{}, len(sess.Participants))
	for name := range sess.Participants {
		out.Participants[name] = struct{}{}
	}
	return out
}
