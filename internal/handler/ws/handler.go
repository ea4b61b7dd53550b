// Package ws is the real-time chat transport: one WebSocket per session,
// user frames in, reply frames out. Connection lifecycle lives here; the
// engine only ever sees SendMessage calls.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
)

// Handler upgrades chat connections to WebSocket.
type Handler struct {
	engine   *companion.Engine
	upgrader websocket.Upgrader
}

// New creates a WebSocket chat handler.
func New(engine *companion.Engine) *Handler {
	return &Handler{
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundFrame struct {
	CharacterID string `json:"characterId"`
	SpeakerName string `json:"speakerName,omitempty"`
	Text        string `json:"text"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for session=%s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] connection opened for session=%s", sessionID)
	h.engine.Touch(sessionID)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for session=%s: %v", sessionID, err)
			}
			return
		}

		result, err := h.engine.Chat(r.Context(), sessionID, frame.CharacterID, frame.SpeakerName, frame.Text)
		if err != nil {
			h.write(conn, outboundFrame{
				Type:      "error",
				SessionID: sessionID,
				Error:     err.Error(),
			})
			continue
		}

		switch result.Outcome {
		case dispatch.OutcomeSuccess:
			h.write(conn, outboundFrame{
				Type:      "reply",
				SessionID: sessionID,
				Reply:     result.Reply,
				Emotion:   string(result.Emotion),
				Cached:    result.Cached,
			})
		case dispatch.OutcomeSuperseded:
			h.write(conn, outboundFrame{
				Type:      "superseded",
				SessionID: sessionID,
			})
		default:
			message := string(result.Outcome)
			if result.Err != nil {
				message = result.Err.Error()
			}
			h.write(conn, outboundFrame{
				Type:      "error",
				SessionID: sessionID,
				Error:     message,
			})
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, frame outboundFrame) {
	frame.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[ws] failed to marshal frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}
