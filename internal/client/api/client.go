// Package api is the HTTP client for the chat backend's REST surface: the
// fallback send-message call and conversation management.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// ErrUnauthorized is wrapped by calls the server answered with 401.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// TokenSource yields the bearer token to attach, or "" for anonymous calls.
type TokenSource interface {
	Token() string
}

// Client talks to the chat REST API rooted at baseURL (e.g. http://host/api).
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a client. tokens may be nil for a guest-only client.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// SendMessage is the fallback transport: one request, one fully formed turn.
func (c *Client) SendMessage(ctx context.Context, req chat.SendRequest) (chat.Message, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat/message", req)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.DecodeMessage(body), nil
}

// ListConversations returns the caller's conversations without messages.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/conversations", nil)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, errors.Wrap(err, "unmarshal conversations")
	}
	out := make([]chat.Conversation, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, chat.ConversationFromFields(item))
		}
	}
	return out, nil
}

// GetConversation returns one conversation including its history.
func (c *Client) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return chat.Conversation{}, err
	}
	return chat.DecodeConversation(body), nil
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat/conversations", map[string]string{"title": title})
	if err != nil {
		return chat.Conversation{}, err
	}
	return chat.DecodeConversation(body), nil
}

// DeleteConversation removes a conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/chat/conversations/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap(ErrUnauthorized, statusErr.Error())
		}
		return nil, statusErr
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
