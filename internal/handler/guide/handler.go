package guide

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ceylontrails/tourchat/internal/model/guide"
	"github.com/ceylontrails/tourchat/pkg/utils"
)

// Handler serves the guide catalogue.
type Handler struct {
	guides guide.Store
}

// New creates a guide handler.
func New(guides guide.Store) *Handler {
	return &Handler{guides: guides}
}

// RegisterRoutes mounts the guide routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/guides", h.handleListGuides)
	r.Get("/guides/{guideID}", h.handleGetGuide)
}

func (h *Handler) handleListGuides(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.guides.List())
}

func (h *Handler) handleGetGuide(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guides.FindByID(chi.URLParam(r, "guideID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "guide not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, g)
}
