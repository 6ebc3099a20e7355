package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ceylontrails/tourchat/internal/handler/chat"
	guidehandler "github.com/ceylontrails/tourchat/internal/handler/guide"
	"github.com/ceylontrails/tourchat/internal/handler/realtime"
	middlewarePkg "github.com/ceylontrails/tourchat/internal/middleware"
	guideModel "github.com/ceylontrails/tourchat/internal/model/guide"
	aiService "github.com/ceylontrails/tourchat/internal/service/ai"
	chatService "github.com/ceylontrails/tourchat/internal/service/chat"
	"github.com/ceylontrails/tourchat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(guides guideModel.Store, chatSvc *chatService.Service, assistant *aiService.Assistant, auth *middlewarePkg.Authenticator, hub *realtime.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	guideHandler := guidehandler.New(guides)
	chatHandler := chat.New(chatSvc, guides, assistant, auth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		guideHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		hub.RegisterRoutes(api)
	})

	return r
}
