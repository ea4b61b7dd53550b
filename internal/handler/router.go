package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chenmingyu/reverie/backend/internal/companion"
	characterHandler "github.com/chenmingyu/reverie/backend/internal/handler/character"
	chatHandler "github.com/chenmingyu/reverie/backend/internal/handler/chat"
	"github.com/chenmingyu/reverie/backend/internal/handler/stream"
	"github.com/chenmingyu/reverie/backend/internal/handler/ws"
	middlewarePkg "github.com/chenmingyu/reverie/backend/internal/middleware"
	characterModel "github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the companion engine.
func NewRouter(roster characterModel.Store, engine *companion.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	streamHandler := stream.New(engine)

	r.Route("/api", func(api chi.Router) {
		characterHandler.New(roster).RegisterRoutes(api)
		chatHandler.New(engine).RegisterRoutes(api)
		ws.New(engine).RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			characterID := r.URL.Query().Get("characterId")
			speakerName := r.URL.Query().Get("speakerName")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}
			if characterID == "" {
				utils.RespondError(w, http.StatusBadRequest, "characterId query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, characterID, speakerName, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
