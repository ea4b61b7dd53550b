package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/cloudwego/eino/schema"

	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	chathandler "github.com/chenmingyu/reverie/backend/internal/handler/chat"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

type staticGenerator struct {
	reply string
}

func (g *staticGenerator) Generate(ctx context.Context, model string, msgs []*schema.Message) (string, error) {
	return g.reply, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	roster := character.NewMemoryStore(character.Seed())
	sessions := session.NewStore(roster, 0)
	responses := cache.New(time.Minute)
	queue := dispatch.New(dispatch.Config{Workers: 1}, &staticGenerator{reply: "hello there"}, sessions, responses, nil)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)
	engine := companion.New(companion.Config{Model: "model-a"}, roster, sessions, responses, queue)

	r := chi.NewRouter()
	chathandler.New(engine).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body map[string]string) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST /chat err: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode err: %v", err)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv := newServer(t)

	resp := postChat(t, srv, map[string]string{
		"sessionId":   "s1",
		"characterId": "naruto-uzumaki",
		"text":        "hi",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		SessionID string `json:"sessionId"`
		Reply     string `json:"reply"`
		Emotion   string `json:"emotion"`
		Cached    bool   `json:"cached"`
		Outcome   string `json:"outcome"`
	}
	decode(t, resp, &payload)
	if payload.Reply != "hello there" || payload.Outcome != "success" || payload.Cached {
		t.Fatalf("unexpected payload %+v", payload)
	}

	// Second identical message is served from the cache.
	resp = postChat(t, srv, map[string]string{
		"sessionId":   "s1",
		"characterId": "naruto-uzumaki",
		"text":        "hi",
	})
	decode(t, resp, &payload)
	if !payload.Cached {
		t.Fatalf("expected cached replay, got %+v", payload)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	srv := newServer(t)

	resp := postChat(t, srv, map[string]string{"sessionId": "s1", "text": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing characterId should 400, got %d", resp.StatusCode)
	}

	resp = postChat(t, srv, map[string]string{
		"sessionId":   "s1",
		"characterId": "naruto-uzumaki",
		"text":        "   ",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank text should 400, got %d", resp.StatusCode)
	}

	resp = postChat(t, srv, map[string]string{
		"sessionId":   "s1",
		"characterId": "no-such-character",
		"text":        "hi",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown character should 404, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	srv := newServer(t)

	resp := postChat(t, srv, map[string]string{
		"sessionId":   "s1",
		"characterId": "naruto-uzumaki",
		"text":        "hi",
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/sessions/s1")
	if err != nil {
		t.Fatalf("GET session err: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sess struct {
		ID      string `json:"id"`
		Emotion string `json:"emotion"`
	}
	decode(t, resp, &sess)
	if sess.ID != "s1" {
		t.Fatalf("unexpected session %+v", sess)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/s1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE session err: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/sessions/s1")
	if err != nil {
		t.Fatalf("GET closed session err: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("closed session should 404, got %d", resp.StatusCode)
	}
}
