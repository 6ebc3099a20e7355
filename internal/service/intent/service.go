// Package intent classifies traveller messages with the chat model and falls
// back to keyword analysis when the model is unavailable or unparseable.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	analysis "github.com/ceylontrails/tourchat/internal/analysis/intent"
	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// Config controls the classifier.
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Service classifies messages, preferring the model when enabled.
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(text string) analysis.Result
	historyLimit int
}

// NewService creates the classifier. chatModel may be shared with the reply
// chain; a nil model leaves only the keyword fallback.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.Analyze,
		historyLimit: historyLimit,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile intent classifier chain")
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the model classifier is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify returns the intent of text given the recent history. Entities
// always come from keyword analysis; the model only decides the label and
// confidence.
func (s *Service) Classify(ctx context.Context, history []chat.Message, text string) analysis.Result {
	base := s.fallback(text)
	if !s.Enabled() || strings.TrimSpace(text) == "" {
		return base
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"labels":       labelList,
		"history":      formatHistory(history, s.historyLimit),
		"user_message": strings.TrimSpace(text),
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "intent").Msg("classifier invoke failed, using keywords")
		return base
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return base
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Warn().Err(err).Str("component", "intent").Msg("classifier output unreadable, using keywords")
		return base
	}

	label, ok := analysis.ParseLabel(payload.Intent)
	if !ok {
		log.Debug().Str("component", "intent").Str("label", payload.Intent).Msg("unknown label, using keywords")
		return base
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	result := base
	result.Intent = label
	result.Confidence = confidence
	if label != base.Intent {
		result.Suggestions = analysis.SuggestionsFor(label)
	}
	return result
}

// parseClassifierOutput extracts the JSON object from the model reply.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, errors.New("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, errors.Wrap(err, "decode classifier json")
	}
	return payload, nil
}

func formatHistory(messages []chat.Message, limit int) string {
	if len(messages) == 0 {
		return "No earlier messages."
	}
	if limit < 1 {
		limit = 1
	}
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for _, msg := range messages[start:] {
		if text := strings.TrimSpace(msg.RequestText); text != "" {
			fmt.Fprintf(&builder, "Traveller: %s\n", text)
		}
		if text := strings.TrimSpace(msg.ResponseText); text != "" && !msg.Failed {
			fmt.Fprintf(&builder, "Guide: %s\n", text)
		}
	}
	if builder.Len() == 0 {
		return "No earlier messages."
	}
	return strings.TrimRight(builder.String(), "\n")
}

type classifierPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

var labelList = strings.Join([]string{
	string(analysis.General), string(analysis.Greeting), string(analysis.Attractions),
	string(analysis.Accommodation), string(analysis.Transport), string(analysis.Food),
	string(analysis.Weather), string(analysis.Culture), string(analysis.Wildlife),
	string(analysis.Practical),
}, ", ")

const classifierSystemPrompt = "You classify messages sent to a Sri Lanka travel assistant. " +
	"Read the recent conversation and the latest message and decide what the traveller is asking about.\n" +
	"Reply with a single JSON object and nothing else, with the fields: " +
	"intent (one of the allowed labels), confidence (a number between 0 and 1), reason (a short phrase)."

const classifierUserPrompt = "Allowed labels: {labels}\n\nRecent conversation:\n{history}\n\nLatest message:\n{user_message}"
