package transport

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// Event is one inbound notification from the connector. The concrete types
// below are the only implementations.
type Event interface {
	isEvent()
}

// ConnectEvent fires each time a socket becomes usable.
type ConnectEvent struct{}

// DisconnectEvent fires when a usable socket goes away, whether dropped by
// the network or torn down by Disconnect.
type DisconnectEvent struct {
	Err error
}

// MessageEvent carries a chat turn pushed by the server.
type MessageEvent struct {
	Message chat.Message
}

// TypingEvent reports the assistant's typing state.
type TypingEvent struct {
	IsTyping       bool
	ConversationID string
}

// JoinedEvent acknowledges a join_conversation request.
type JoinedEvent struct {
	ConversationID string
}

// ErrorEvent reports handshake failures, exhausted reconnects, unreadable
// frames and server-side rejections.
type ErrorEvent struct {
	Err error
}

func (ConnectEvent) isEvent()    {}
func (DisconnectEvent) isEvent() {}
func (MessageEvent) isEvent()    {}
func (TypingEvent) isEvent()     {}
func (JoinedEvent) isEvent()     {}
func (ErrorEvent) isEvent()      {}

// ErrServer wraps error events sent by the backend.
var ErrServer = errors.New("server error")

// decodeFrame turns a raw text frame into an event. Unknown event types are
// dropped; unreadable frames become an ErrorEvent.
func decodeFrame(data []byte) Event {
	var env chat.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ErrorEvent{Err: errors.Wrap(err, "decode frame")}
	}

	switch env.Type {
	case chat.EventMessage:
		return MessageEvent{Message: chat.DecodeMessage(env.Data)}
	case chat.EventTyping:
		typing := chat.DecodeTyping(env.Data)
		return TypingEvent{IsTyping: typing.IsTyping, ConversationID: typing.ConversationID}
	case chat.EventJoined:
		var ref chat.ConversationRef
		_ = json.Unmarshal(env.Data, &ref)
		return JoinedEvent{ConversationID: ref.ConversationID}
	case chat.EventError:
		var payload chat.ErrorPayload
		_ = json.Unmarshal(env.Data, &payload)
		if payload.Message == "" {
			payload.Message = "unspecified"
		}
		return ErrorEvent{Err: errors.Wrap(ErrServer, payload.Message)}
	default:
		log.Debug().Str("component", "transport").Str("type", env.Type).Msg("ignoring unknown event")
		return nil
	}
}
