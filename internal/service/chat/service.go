package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

var (
	ErrOwnerRequired        = errors.New("owner id is required")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("conversation belongs to another user")
)

const defaultTitle = "New trip"

// Service keeps conversations and their turns in memory.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	now           func() time.Time
}

// NewService creates an empty in-memory store.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation provisions a conversation owned by ownerID.
func (s *Service) CreateConversation(_ context.Context, ownerID, title, guideID string) (chat.Conversation, error) {
	if ownerID == "" {
		return chat.Conversation{}, ErrOwnerRequired
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	now := s.now()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		GuideID:   guideID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conv, nil
}

// EnsureGuestSession returns the ownerless conversation keyed by sessionID,
// creating it on first use.
func (s *Service) EnsureGuestSession(_ context.Context, sessionID string) (chat.Conversation, error) {
	if sessionID == "" {
		return chat.Conversation{}, ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[sessionID]; ok {
		if conv.OwnerID != "" {
			return chat.Conversation{}, ErrForbidden
		}
		return conv, nil
	}

	now := s.now()
	conv := chat.Conversation{ID: sessionID, Title: "Guest session", CreatedAt: now, UpdatedAt: now}
	s.conversations[sessionID] = conv
	s.messages[sessionID] = make([]chat.Message, 0, 16)
	return conv, nil
}

// ListConversations returns ownerID's conversations, most recently updated
// first, without messages.
func (s *Service) ListConversations(_ context.Context, ownerID string) ([]chat.Conversation, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	s.mu.RLock()
	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.OwnerID == ownerID {
			out = append(out, conv)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// GetConversation returns the conversation with its messages.
func (s *Service) GetConversation(_ context.Context, ownerID, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.authorizeLocked(ownerID, id)
	if err != nil {
		return chat.Conversation{}, err
	}
	conv.Messages = append([]chat.Message(nil), s.messages[id]...)
	return conv, nil
}

// Find returns the conversation without messages and without an owner
// check.
func (s *Service) Find(_ context.Context, id string) (chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	return conv, ok
}

// Authorize checks that ownerID may use conversation id.
func (s *Service) Authorize(_ context.Context, ownerID, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.authorizeLocked(ownerID, id)
	return err
}

func (s *Service) authorizeLocked(ownerID, id string) (chat.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	if conv.OwnerID != ownerID {
		return chat.Conversation{}, ErrForbidden
	}
	return conv, nil
}

// DeleteConversation removes the conversation and its messages.
func (s *Service) DeleteConversation(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorizeLocked(ownerID, id); err != nil {
		return err
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage stores a turn, assigning an id and timestamp when missing.
func (s *Service) AppendMessage(_ context.Context, conversationID string, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}
	message.ConversationID = conversationID
	message.Pending = false
	message.Failed = false

	s.messages[conversationID] = append(s.messages[conversationID], message)
	conv.UpdatedAt = s.now()
	s.conversations[conversationID] = conv
	return message, nil
}

// LoadTranscript returns stored messages for the conversation.
func (s *Service) LoadTranscript(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
