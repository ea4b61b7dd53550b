// Package cache replays previously generated replies so identical prompts
// within the TTL never reach the rate-limited generation backend.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
)

// DefaultTTL bounds how long a generated reply stays replayable.
const DefaultTTL = 5 * time.Minute

// Entry is one cached reply together with the emotion it was generated
// under. Entries are pure values; replaying one has no side effect beyond
// what the caller records in the session history.
type Entry struct {
	SessionID string
	Text      string
	Emotion   emotion.Emotion
	CreatedAt time.Time
}

// Cache maps request fingerprints to cached replies with TTL expiry.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
}

// New returns a Cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Normalize canonicalizes message text for fingerprinting: trimmed,
// case-folded, inner whitespace collapsed.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint derives the deterministic cache key for a request. Keying on
// the session's current emotion guarantees mood-dependent phrasing is never
// served after a mood shift.
func Fingerprint(sessionID, text, model string, mood emotion.Emotion) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(mood))
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the entry for fp if present and unexpired. Expired entries
// are purged lazily and reported as misses.
func (c *Cache) Lookup(fp string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fp]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		delete(c.entries, fp)
		return Entry{}, false
	}
	return entry, true
}

// Store records a freshly generated reply under fp.
func (c *Cache) Store(fp, sessionID, text string, mood emotion.Emotion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fp] = Entry{
		SessionID: sessionID,
		Text:      text,
		Emotion:   mood,
		CreatedAt: c.now(),
	}
}

// InvalidateSession removes every entry recorded for sessionID and returns
// how many were dropped. Called on session close and character reset.
func (c *Cache) InvalidateSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, entry := range c.entries {
		if entry.SessionID == sessionID {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
