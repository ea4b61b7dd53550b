package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/pkg/utils"
)

// Handler delivers replies over Server-Sent Events so the chat surface can
// show a pending state while the dispatcher works.
type Handler struct {
	engine *companion.Engine
}

// New creates a stream handler.
func New(engine *companion.Engine) *Handler {
	return &Handler{engine: engine}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest queues the message and streams status plus the final
// reply for one chat turn.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, characterID, speakerName, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	handle, err := h.engine.SendMessage(ctx, sessionID, characterID, speakerName, userMessage)
	if err != nil {
		h.sendError(w, flusher, sessionID, err.Error())
		return err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "queued",
		SessionID: sessionID,
	})

	result, err := handle.Wait(ctx)
	if err != nil {
		h.sendError(w, flusher, sessionID, "client disconnected")
		return err
	}

	switch result.Outcome {
	case dispatch.OutcomeSuccess:
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "message",
			SessionID: sessionID,
			Content:   result.Reply,
			Emotion:   string(result.Emotion),
			Cached:    result.Cached,
		})
	case dispatch.OutcomeSuperseded:
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "superseded",
			SessionID: sessionID,
		})
	default:
		message := string(result.Outcome)
		if result.Err != nil {
			message = result.Err.Error()
		}
		h.sendError(w, flusher, sessionID, message)
		return result.Err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})
	return nil
}

func (h *Handler) sendError(w http.ResponseWriter, flusher http.Flusher, sessionID, message string) {
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		Error:     message,
	})
}
