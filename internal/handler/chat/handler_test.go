package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceylontrails/tourchat/internal/middleware"
	"github.com/ceylontrails/tourchat/internal/model/chat"
	"github.com/ceylontrails/tourchat/internal/model/guide"
	aiservice "github.com/ceylontrails/tourchat/internal/service/ai"
	chatservice "github.com/ceylontrails/tourchat/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService()
	guides := guide.NewMemoryStore(guide.Seed())
	auth := middleware.NewAuthenticator(map[string]string{"tok-a": "alice", "tok-b": "bob"})
	handler := New(chatSvc, guides, aiservice.NewAssistant(aiservice.RuleResponder{}, chatSvc, guides), auth)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGuestSendMessage(t *testing.T) {
	r, chatSvc := setupRouter()

	resp := do(t, r, http.MethodPost, "/chat/message", "", chat.SendRequest{Message: "Where is Sigiriya?", Language: "en", SessionID: "guest-42"})
	require.Equal(t, http.StatusOK, resp.Code)

	msg := chat.DecodeMessage(resp.Body.Bytes())
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Where is Sigiriya?", msg.RequestText)
	assert.Contains(t, msg.ResponseText, "Sigiriya")
	assert.Equal(t, "attractions", msg.Intent)
	assert.Equal(t, "guest-42", msg.ConversationID)

	resp = do(t, r, http.MethodPost, "/chat/message", "", chat.SendRequest{Message: "Thanks", SessionID: "guest-42"})
	require.Equal(t, http.StatusOK, resp.Code)

	transcript, err := chatSvc.LoadTranscript(context.Background(), "guest-42")
	require.NoError(t, err)
	assert.Len(t, transcript, 2)
}

func TestSendMessageValidation(t *testing.T) {
	r, _ := setupRouter()

	resp := do(t, r, http.MethodPost, "/chat/message", "", chat.SendRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/chat/message", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp = do(t, r, http.MethodPost, "/chat/message", "bad-token", chat.SendRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSendMessageIntoOwnedConversation(t *testing.T) {
	r, _ := setupRouter()

	resp := do(t, r, http.MethodPost, "/chat/conversations", "tok-a", map[string]string{"title": "Hill country", "guide_id": "hill-country"})
	require.Equal(t, http.StatusCreated, resp.Code)
	conv := chat.DecodeConversation(resp.Body.Bytes())

	resp = do(t, r, http.MethodPost, "/chat/message", "tok-a", chat.SendRequest{Message: "Hello", SessionID: conv.ID})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, chat.DecodeMessage(resp.Body.Bytes()).ResponseText, "Kandy to Ella")

	// someone else's conversation id cannot be used as a guest session
	resp = do(t, r, http.MethodPost, "/chat/message", "tok-b", chat.SendRequest{Message: "Hello", SessionID: conv.ID})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = do(t, r, http.MethodPost, "/chat/message", "", chat.SendRequest{Message: "Hello", SessionID: conv.ID})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = do(t, r, http.MethodGet, "/chat/conversations/"+conv.ID, "tok-a", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, chat.DecodeConversation(resp.Body.Bytes()).Messages, 1)
}

func TestConversationEndpoints(t *testing.T) {
	r, _ := setupRouter()

	resp := do(t, r, http.MethodGet, "/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = do(t, r, http.MethodPost, "/chat/conversations", "tok-a", map[string]string{"guide_id": "nobody"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/chat/conversations", "tok-a", nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	conv := chat.DecodeConversation(resp.Body.Bytes())
	assert.Equal(t, "New trip", conv.Title)

	resp = do(t, r, http.MethodGet, "/chat/conversations", "tok-a", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []chat.Conversation
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)

	resp = do(t, r, http.MethodGet, "/chat/conversations/"+conv.ID, "tok-b", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = do(t, r, http.MethodDelete, "/chat/conversations/"+conv.ID, "tok-b", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = do(t, r, http.MethodDelete, "/chat/conversations/"+conv.ID, "tok-a", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = do(t, r, http.MethodGet, "/chat/conversations/"+conv.ID, "tok-a", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
