package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/middleware"
	"github.com/ceylontrails/tourchat/internal/model/chat"
	"github.com/ceylontrails/tourchat/internal/model/guide"
	aiservice "github.com/ceylontrails/tourchat/internal/service/ai"
	chatservice "github.com/ceylontrails/tourchat/internal/service/chat"
	"github.com/ceylontrails/tourchat/pkg/utils"
)

// Handler serves the chat REST API.
type Handler struct {
	chatSvc   *chatservice.Service
	guides    guide.Store
	assistant *aiservice.Assistant
	auth      *middleware.Authenticator
}

// New creates a chat handler.
func New(chatSvc *chatservice.Service, guides guide.Store, assistant *aiservice.Assistant, auth *middleware.Authenticator) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		guides:    guides,
		assistant: assistant,
		auth:      auth,
	}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.With(h.auth.OptionalAuth).Post("/message", h.handleSendMessage)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.RequireAuth)
			r.Get("/conversations", h.handleListConversations)
			r.Post("/conversations", h.handleCreateConversation)
			r.Get("/conversations/{conversationID}", h.handleGetConversation)
			r.Delete("/conversations/{conversationID}", h.handleDeleteConversation)
		})
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req chat.SendRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	conversationID, err := h.resolveSession(r, req.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	msg, err := h.assistant.Reply(r.Context(), conversationID, text, req.Language, "")
	if err != nil {
		log.Error().Err(err).Str("component", "chat").Str("conversation_id", conversationID).Msg("reply failed")
		utils.RespondError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	utils.RespondJSON(w, http.StatusOK, msg)
}

// resolveSession maps a session id to a stored conversation: the caller's
// own conversation when signed in, otherwise a guest session.
func (h *Handler) resolveSession(r *http.Request, sessionID string) (string, error) {
	ctx := r.Context()
	if sessionID == "" {
		sessionID = "guest-" + uuid.NewString()
	}

	if user, ok := middleware.UserFromContext(ctx); ok {
		err := h.chatSvc.Authorize(ctx, user, sessionID)
		if err == nil {
			return sessionID, nil
		}
		if !errors.Is(err, chatservice.ErrConversationNotFound) {
			return "", err
		}
	}

	conv, err := h.chatSvc.EnsureGuestSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	list, err := h.chatSvc.ListConversations(r.Context(), user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title   string `json:"title"`
		GuideID string `json:"guide_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.GuideID != "" {
		if _, ok := h.guides.FindByID(payload.GuideID); !ok {
			utils.RespondError(w, http.StatusBadRequest, "guide not found")
			return
		}
	}

	user, _ := middleware.UserFromContext(r.Context())
	conv, err := h.chatSvc.CreateConversation(r.Context(), user, payload.Title, payload.GuideID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	conv, err := h.chatSvc.GetConversation(r.Context(), user, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	if err := h.chatSvc.DeleteConversation(r.Context(), user, chi.URLParam(r, "conversationID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatservice.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chatservice.ErrOwnerRequired):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Error().Err(err).Str("component", "chat").Msg("request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
