package chat

import "time"

// Entity is a place or thing recognised in a user's question.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Media is an attachment suggested alongside an assistant reply.
type Media struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Message is one exchanged chat turn: the user's request and the assistant's reply.
type Message struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"client_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	RequestText    string    `json:"message"`
	ResponseText   string    `json:"response"`
	Language       string    `json:"language"`
	Timestamp      time.Time `json:"timestamp"`
	Intent         string    `json:"intent,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Entities       []Entity  `json:"entities,omitempty"`
	Suggestions    []string  `json:"suggestions,omitempty"`
	Multimedia     []Media   `json:"multimedia,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms,omitempty"`

	// Pending is set on optimistic entries until a reply is merged in.
	Pending bool `json:"-"`
	// Failed marks entries whose ResponseText carries a delivery failure.
	Failed bool `json:"-"`
}

// Resolved reports whether both sides of the turn are populated.
func (m Message) Resolved() bool {
	return m.RequestText != "" && m.ResponseText != ""
}

// Merge folds a server-confirmed message into an optimistic entry. Fields the
// server left empty keep their local values.
func (m Message) Merge(server Message) Message {
	merged := m
	if server.ID != "" {
		merged.ID = server.ID
	}
	if server.ConversationID != "" {
		merged.ConversationID = server.ConversationID
	}
	if server.RequestText != "" {
		merged.RequestText = server.RequestText
	}
	if server.ResponseText != "" {
		merged.ResponseText = server.ResponseText
	}
	if server.Language != "" {
		merged.Language = server.Language
	}
	if !server.Timestamp.IsZero() {
		merged.Timestamp = server.Timestamp
	}
	if server.Intent != "" {
		merged.Intent = server.Intent
	}
	if server.Confidence != 0 {
		merged.Confidence = server.Confidence
	}
	if len(server.Entities) > 0 {
		merged.Entities = server.Entities
	}
	if len(server.Suggestions) > 0 {
		merged.Suggestions = server.Suggestions
	}
	if len(server.Multimedia) > 0 {
		merged.Multimedia = server.Multimedia
	}
	if server.ResponseTimeMS != 0 {
		merged.ResponseTimeMS = server.ResponseTimeMS
	}
	merged.Pending = merged.ResponseText == ""
	merged.Failed = false
	return merged
}
