package ai

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/model/chat"
	"github.com/ceylontrails/tourchat/internal/model/guide"
	chatservice "github.com/ceylontrails/tourchat/internal/service/chat"
)

// ErrNoGuide is returned when the guide store is empty.
var ErrNoGuide = errors.New("no guide available")

// Assistant answers a user turn in a stored conversation and persists it.
type Assistant struct {
	responder Responder
	chats     *chatservice.Service
	guides    guide.Store
}

// NewAssistant wires a responder to the conversation store.
func NewAssistant(responder Responder, chats *chatservice.Service, guides guide.Store) *Assistant {
	return &Assistant{responder: responder, chats: chats, guides: guides}
}

// Reply generates the answer to text, stores the completed turn and returns
// it. clientID is echoed back so the sender can reconcile its entry.
func (a *Assistant) Reply(ctx context.Context, conversationID, text, language, clientID string) (chat.Message, error) {
	conv, ok := a.chats.Find(ctx, conversationID)
	if !ok {
		return chat.Message{}, chatservice.ErrConversationNotFound
	}

	g, ok := guide.Resolve(a.guides, conv.GuideID)
	if !ok {
		return chat.Message{}, ErrNoGuide
	}

	history, err := a.chats.LoadTranscript(ctx, conversationID)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "load transcript")
	}

	msg, err := a.responder.Respond(ctx, Request{
		ConversationID: conversationID,
		Guide:          g,
		History:        history,
		Text:           text,
		Language:       language,
	})
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "generate reply")
	}
	msg.ClientID = clientID

	stored, err := a.chats.AppendMessage(ctx, conversationID, msg)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "save message")
	}

	log.Debug().
		Str("component", "assistant").
		Str("conversation_id", conversationID).
		Str("intent", stored.Intent).
		Int64("response_time_ms", stored.ResponseTimeMS).
		Msg("turn stored")
	return stored, nil
}
