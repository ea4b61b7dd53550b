package character

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/pkg/utils"
)

// Handler serves the read-only character roster.
type Handler struct {
	roster character.Store
}

// New creates a character handler.
func New(roster character.Store) *Handler {
	return &Handler{roster: roster}
}

// RegisterRoutes registers roster routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleList)
	r.Get("/characters/{characterID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.roster.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "characterID")
	char, ok := h.roster.FindByID(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, char)
}
