package companion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/model/chat"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

type countingGenerator struct {
	mu    sync.Mutex
	calls int
	reply string
	delay time.Duration
}

func (g *countingGenerator) Generate(ctx context.Context, model string, msgs []*schema.Message) (string, error) {
	g.mu.Lock()
	g.calls++
	reply, delay := g.reply, g.delay
	g.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, nil
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newEngine(t *testing.T, gen *countingGenerator, qcfg dispatch.Config) (*companion.Engine, *cache.Cache, *session.Store) {
	t.Helper()
	roster := character.NewMemoryStore(character.Seed())
	sessions := session.NewStore(roster, 0)
	responses := cache.New(time.Minute)
	queue := dispatch.New(qcfg, gen, sessions, responses, nil)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)
	engine := companion.New(companion.Config{Model: "model-a"}, roster, sessions, responses, queue)
	return engine, responses, sessions
}

func TestChatFirstSendAndCachedResend(t *testing.T) {
	gen := &countingGenerator{reply: "Believe it!"}
	engine, responses, _ := newEngine(t, gen, dispatch.Config{Workers: 1})
	ctx := context.Background()

	res, err := engine.Chat(ctx, "s1", "naruto-uzumaki", "", "hi")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if res.Outcome != dispatch.OutcomeSuccess || res.Cached {
		t.Fatalf("expected fresh success, got %+v", res)
	}
	if res.Reply != "Believe it!" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if gen.callCount() != 1 {
		t.Fatalf("expected one backend call, got %d", gen.callCount())
	}

	sess, err := engine.Session("s1")
	if err != nil {
		t.Fatalf("Session err: %v", err)
	}
	// Persona system turn, the user turn, the assistant turn.
	if len(sess.History) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(sess.History))
	}
	if responses.Len() != 1 {
		t.Fatalf("expected one cache entry, got %d", responses.Len())
	}

	// Identical resend inside the TTL must replay without a backend call.
	res2, err := engine.Chat(ctx, "s1", "naruto-uzumaki", "", "hi")
	if err != nil {
		t.Fatalf("resend err: %v", err)
	}
	if !res2.Cached {
		t.Fatal("expected a cached replay")
	}
	if res2.Reply != res.Reply {
		t.Fatalf("replay text %q differs from original %q", res2.Reply, res.Reply)
	}
	if gen.callCount() != 1 {
		t.Fatalf("replay must not call the backend, got %d calls", gen.callCount())
	}

	sess, _ = engine.Session("s1")
	if len(sess.History) != 5 {
		t.Fatalf("replay must still record both turns, got %d", len(sess.History))
	}
}

func TestSendMessageValidation(t *testing.T) {
	engine, _, _ := newEngine(t, &countingGenerator{reply: "ok"}, dispatch.Config{Workers: 1})
	ctx := context.Background()

	if _, err := engine.SendMessage(ctx, "s1", "naruto-uzumaki", "", "   "); !errors.Is(err, companion.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := engine.SendMessage(ctx, "s1", "no-such-character", "", "hi"); !errors.Is(err, companion.ErrCharacterNotFound) {
		t.Fatalf("expected ErrCharacterNotFound, got %v", err)
	}
}

func TestGroupMessagesRecordSpeaker(t *testing.T) {
	engine, _, _ := newEngine(t, &countingGenerator{reply: "welcome"}, dispatch.Config{Workers: 1})

	res, err := engine.Chat(context.Background(), "room-1", "mira-starfall", "Kenji", "hello everyone")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if res.Outcome != dispatch.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Outcome, res.Err)
	}

	sess, _ := engine.Session("room-1")
	if _, ok := sess.Participants["Kenji"]; !ok {
		t.Fatalf("speaker not tracked: %v", sess.Participants)
	}
	var userTurn chat.Message
	for _, msg := range sess.History {
		if msg.Role == chat.RoleUser {
			userTurn = msg
		}
	}
	if userTurn.SpeakerName != "Kenji" {
		t.Fatalf("user turn lost its speaker: %+v", userTurn)
	}
}

func TestCloseSessionCancelsAndInvalidates(t *testing.T) {
	gen := &countingGenerator{reply: "ok", delay: 200 * time.Millisecond}
	engine, responses, _ := newEngine(t, gen, dispatch.Config{Workers: 1})
	ctx := context.Background()

	handle, err := engine.SendMessage(ctx, "s1", "naruto-uzumaki", "", "hi")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if err := engine.CloseSession("s1"); err != nil {
		t.Fatalf("CloseSession err: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := handle.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait err: %v", err)
	}
	if res.Outcome != dispatch.OutcomeCancelled && res.Outcome != dispatch.OutcomeSessionGone {
		t.Fatalf("expected cancelled, got %s", res.Outcome)
	}
	if responses.Len() != 0 {
		t.Fatalf("close must flush the session's cache entries, got %d", responses.Len())
	}
	if _, err := engine.Session("s1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
}

func TestEvictIdleCancelsQueuedWork(t *testing.T) {
	gen := &countingGenerator{reply: "ok", delay: 200 * time.Millisecond}
	engine, _, _ := newEngine(t, gen, dispatch.Config{Workers: 1})
	ctx := context.Background()

	handle, err := engine.SendMessage(ctx, "s1", "naruto-uzumaki", "", "hi")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	evicted := engine.EvictIdle(time.Now().Add(time.Hour), time.Minute)
	if len(evicted) != 1 || evicted[0] != "s1" {
		t.Fatalf("expected s1 evicted, got %v", evicted)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := handle.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait err: %v", err)
	}
	if res.Outcome != dispatch.OutcomeCancelled && res.Outcome != dispatch.OutcomeSessionGone {
		t.Fatalf("expected cancelled after eviction, got %s", res.Outcome)
	}
}

func TestBackpressureSurfacesQueueFull(t *testing.T) {
	gen := &countingGenerator{reply: "ok", delay: 300 * time.Millisecond}
	roster := character.NewMemoryStore(character.Seed())
	sessions := session.NewStore(roster, 0)
	responses := cache.New(time.Minute)
	// Not started: requests accumulate deterministically.
	queue := dispatch.New(dispatch.Config{Workers: 1, MaxDepth: 1}, gen, sessions, responses, nil)
	t.Cleanup(queue.Stop)
	engine := companion.New(companion.Config{Model: "model-a"}, roster, sessions, responses, queue)
	ctx := context.Background()

	if _, err := engine.SendMessage(ctx, "s1", "naruto-uzumaki", "", "hi"); err != nil {
		t.Fatalf("first send err: %v", err)
	}
	if _, err := engine.SendMessage(ctx, "s2", "naruto-uzumaki", "", "hi"); !errors.Is(err, dispatch.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
