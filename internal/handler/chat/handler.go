package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/internal/session"
	"github.com/chenmingyu/reverie/backend/pkg/utils"
)

// Handler exposes the synchronous chat entry point over HTTP.
type Handler struct {
	engine *companion.Engine
}

// New creates a chat handler.
func New(engine *companion.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleCloseSession)
}

type chatRequest struct {
	SessionID   string `json:"sessionId"`
	CharacterID string `json:"characterId"`
	SpeakerName string `json:"speakerName,omitempty"`
	Text        string `json:"text"`
}

type chatResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Emotion   string `json:"emotion"`
	Cached    bool   `json:"cached"`
	Outcome   string `json:"outcome"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" || payload.CharacterID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId and characterId are required")
		return
	}

	result, err := h.engine.Chat(r.Context(), payload.SessionID, payload.CharacterID, payload.SpeakerName, payload.Text)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	switch result.Outcome {
	case dispatch.OutcomeSuccess:
		utils.RespondJSON(w, http.StatusOK, chatResponse{
			SessionID: payload.SessionID,
			Reply:     result.Reply,
			Emotion:   string(result.Emotion),
			Cached:    result.Cached,
			Outcome:   string(result.Outcome),
		})
	case dispatch.OutcomeSuperseded:
		// A newer message took this one's place; nothing to deliver.
		utils.RespondJSON(w, http.StatusOK, chatResponse{
			SessionID: payload.SessionID,
			Outcome:   string(result.Outcome),
		})
	case dispatch.OutcomeCancelled, dispatch.OutcomeSessionGone:
		utils.RespondError(w, http.StatusGone, "session closed before the reply finished")
	default:
		message := "generation failed"
		if result.Err != nil {
			message = result.Err.Error()
		}
		utils.RespondError(w, http.StatusBadGateway, message)
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, companion.ErrCharacterNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, companion.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
