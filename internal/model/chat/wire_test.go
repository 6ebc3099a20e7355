package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageFullPayload(t *testing.T) {
	raw := []byte(`{
		"id": "m1",
		"client_id": "c-1",
		"conversation_id": "conv",
		"message": "Where is Sigiriya?",
		"response": "In the Matale District.",
		"language": "en",
		"intent": "attraction_info",
		"confidence": 0.82,
		"entities": [{"type": "attraction", "value": "Sigiriya"}, "Dambulla"],
		"suggestions": ["Opening hours", ""],
		"multimedia": [{"type": "image", "url": "https://img/sigiriya.jpg"}, {"type": "image"}],
		"timestamp": "2024-05-01T10:00:00Z",
		"response_time_ms": 120
	}`)

	msg := DecodeMessage(raw)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c-1", msg.ClientID)
	assert.Equal(t, "conv", msg.ConversationID)
	assert.Equal(t, "Where is Sigiriya?", msg.RequestText)
	assert.Equal(t, "In the Matale District.", msg.ResponseText)
	assert.InDelta(t, 0.82, msg.Confidence, 1e-9)
	assert.Equal(t, []Entity{{Type: "attraction", Value: "Sigiriya"}, {Value: "Dambulla"}}, msg.Entities)
	assert.Equal(t, []string{"Opening hours"}, msg.Suggestions)
	require.Len(t, msg.Multimedia, 1)
	assert.Equal(t, int64(120), msg.ResponseTimeMS)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msg.Timestamp)
	assert.False(t, msg.Pending)
}

func TestDecodeMessageDefaultsMalformedFields(t *testing.T) {
	raw := []byte(`{"id": 42, "response": null, "confidence": "7", "entities": "nope", "timestamp": "yesterday"}`)

	msg := DecodeMessage(raw)

	assert.Equal(t, "42", msg.ID)
	assert.Empty(t, msg.ResponseText)
	assert.Equal(t, 1.0, msg.Confidence)
	assert.Nil(t, msg.Entities)
	assert.True(t, msg.Timestamp.IsZero())
	assert.True(t, msg.Pending)
}

func TestDecodeMessageGarbage(t *testing.T) {
	assert.Equal(t, Message{}, DecodeMessage([]byte(`not json`)))
	assert.Equal(t, Message{}, DecodeMessage([]byte(`[1,2]`)))
}

func TestDecodeTyping(t *testing.T) {
	assert.True(t, DecodeTyping([]byte(`{"isTyping": true}`)).IsTyping)
	assert.False(t, DecodeTyping([]byte(`{"isTyping": "yes"}`)).IsTyping)
	assert.False(t, DecodeTyping(nil).IsTyping)
}

func TestDecodeConversationWithMessages(t *testing.T) {
	raw := []byte(`{"id": "c1", "title": "Kandy trip", "messages": [{"id": "m1", "message": "hi", "response": "hello"}, 3]}`)

	conv := DecodeConversation(raw)

	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, "Kandy trip", conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].ResponseText)
}

func TestMergeKeepsLocalFieldsAndClearsPending(t *testing.T) {
	local := Message{ID: "c-1", ClientID: "c-1", RequestText: "hi", Language: "en", Pending: true, Failed: true}

	merged := local.Merge(Message{ID: "srv-1", ResponseText: "hello", Intent: "greeting"})

	assert.Equal(t, "srv-1", merged.ID)
	assert.Equal(t, "c-1", merged.ClientID)
	assert.Equal(t, "hi", merged.RequestText)
	assert.Equal(t, "hello", merged.ResponseText)
	assert.Equal(t, "en", merged.Language)
	assert.False(t, merged.Pending)
	assert.False(t, merged.Failed)
	assert.True(t, merged.Resolved())
}
