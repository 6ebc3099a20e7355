package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestSendMessageAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/message", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req chat.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, chat.SendRequest{Message: "Hello", Language: "en", SessionID: "guest-1"}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "m1", "message": "Hello", "response": "Ayubowan!", "intent": "greeting", "confidence": 0.9}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/api/", 0, nil)
	msg, err := client.SendMessage(context.Background(), chat.SendRequest{Message: "Hello", Language: "en", SessionID: "guest-1"})
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Ayubowan!", msg.ResponseText)
	assert.Equal(t, "greeting", msg.Intent)
}

func TestConversationCalls(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id": "c1", "title": "Kandy"}, null, {"id": "c2", "title": "Galle"}]`))
		case http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": "c3", "title": "` + body["title"] + `"}`))
		}
	})
	mux.HandleFunc("/chat/conversations/c1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id": "c1", "title": "Kandy", "messages": [{"id": "m1", "message": "hi", "response": "hello"}]}`))
		case http.MethodDelete:
			deleted = "c1"
			w.WriteHeader(http.StatusNoContent)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(srv.URL, 0, staticToken("tok"))
	ctx := context.Background()

	list, err := client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Galle", list[1].Title)

	conv, err := client.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].ResponseText)

	created, err := client.CreateConversation(ctx, "Ella")
	require.NoError(t, err)
	assert.Equal(t, "c3", created.ID)
	assert.Equal(t, "Ella", created.Title)

	require.NoError(t, client.DeleteConversation(ctx, "c1"))
	assert.Equal(t, "c1", deleted)
}

func TestErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/conversations" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "missing bearer token"}`))
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	ctx := context.Background()

	_, err := client.ListConversations(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Contains(t, err.Error(), "missing bearer token")

	_, err = client.SendMessage(ctx, chat.SendRequest{Message: "hi"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Message)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 0, nil).SendMessage(context.Background(), chat.SendRequest{Message: "hi"})
	assert.Error(t, err)
}
