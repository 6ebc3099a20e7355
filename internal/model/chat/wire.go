package chat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event types carried in the realtime envelope.
const (
	EventMessage           = "message"
	EventTyping            = "typing"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventJoined            = "joined"
	EventError             = "error"
)

// Envelope is the JSON frame exchanged over the realtime channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage is the client's realtime message event.
type OutboundMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	ClientID       string `json:"client_id,omitempty"`
}

// TypingPayload is exchanged in both directions.
type TypingPayload struct {
	IsTyping       bool   `json:"isTyping"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationRef carries a conversation id for join, leave and joined events.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// ErrorPayload is sent by the server when it rejects an event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SendRequest is the body of the fallback send-message call.
type SendRequest struct {
	Message   string `json:"message"`
	Language  string `json:"language"`
	SessionID string `json:"session_id"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw}, nil
}

// DecodeMessage reads a server message payload without trusting its shape.
// Missing or mistyped fields fall back to zero values.
func DecodeMessage(raw []byte) Message {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Message{}
	}
	return MessageFromFields(fields)
}

// MessageFromFields builds a Message from a loosely typed payload.
func MessageFromFields(fields map[string]any) Message {
	msg := Message{
		ID:             stringField(fields, "id"),
		ClientID:       stringField(fields, "client_id"),
		ConversationID: stringField(fields, "conversation_id"),
		RequestText:    stringField(fields, "message"),
		ResponseText:   stringField(fields, "response"),
		Language:       stringField(fields, "language"),
		Timestamp:      timeField(fields, "timestamp"),
		Intent:         stringField(fields, "intent"),
		Confidence:     clampUnit(floatField(fields, "confidence")),
		Entities:       entitiesField(fields, "entities"),
		Suggestions:    stringsField(fields, "suggestions"),
		Multimedia:     mediaField(fields, "multimedia"),
		ResponseTimeMS: int64(floatField(fields, "response_time_ms")),
	}
	msg.Pending = msg.ResponseText == ""
	return msg
}

// DecodeTyping reads a typing payload; anything unreadable means "not typing".
func DecodeTyping(raw []byte) TypingPayload {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return TypingPayload{}
	}
	typing, _ := fields["isTyping"].(bool)
	return TypingPayload{IsTyping: typing, ConversationID: stringField(fields, "conversation_id")}
}

// DecodeConversation reads a conversation payload including its messages.
func DecodeConversation(raw []byte) Conversation {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Conversation{}
	}
	return ConversationFromFields(fields)
}

// ConversationFromFields builds a Conversation from a loosely typed payload.
func ConversationFromFields(fields map[string]any) Conversation {
	conv := Conversation{
		ID:        stringField(fields, "id"),
		OwnerID:   stringField(fields, "owner_id"),
		Title:     stringField(fields, "title"),
		GuideID:   stringField(fields, "guide_id"),
		CreatedAt: timeField(fields, "created_at"),
		UpdatedAt: timeField(fields, "updated_at"),
	}
	if items, ok := fields["messages"].([]any); ok {
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				conv.Messages = append(conv.Messages, MessageFromFields(obj))
			}
		}
	}
	return conv
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func timeField(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case float64:
		// unix milliseconds, as browsers send them
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Time{}
}

func stringsField(fields map[string]any, key string) []string {
	items, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func entitiesField(fields map[string]any, key string) []Entity {
	items, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	var out []Entity
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, Entity{Value: v})
		case map[string]any:
			entity := Entity{Type: stringField(v, "type"), Value: stringField(v, "value")}
			if entity.Value == "" {
				entity.Value = stringField(v, "name")
			}
			if entity.Value != "" {
				out = append(out, entity)
			}
		}
	}
	return out
}

func mediaField(fields map[string]any, key string) []Media {
	items, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	var out []Media
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		media := Media{Type: stringField(obj, "type"), URL: stringField(obj, "url"), Caption: stringField(obj, "caption")}
		if media.URL != "" {
			out = append(out, media)
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
