package ai

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/analysis/intent"
	"github.com/ceylontrails/tourchat/internal/config"
	"github.com/ceylontrails/tourchat/internal/model/chat"
)

const historyLimit = 10

// IntentClassifier labels a message given its conversation, satisfied by
// the intent service.
type IntentClassifier interface {
	Classify(ctx context.Context, history []chat.Message, text string) intent.Result
}

// Service answers with the configured chat model through an eino chain.
type Service struct {
	chatModel  model.ChatModel
	chain      compose.Runnable[map[string]any, *schema.Message]
	prompts    *GuidePromptManager
	classifier IntentClassifier
}

// NewService builds the Ark model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}

	return &Service{chatModel: chatModel, chain: runnable, prompts: NewGuidePromptManager()}, nil
}

// ChatModel exposes the underlying model so other chains can share it.
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// WithClassifier replaces keyword intent analysis with c.
func (s *Service) WithClassifier(c IntentClassifier) *Service {
	s.classifier = c
	return s
}

func (s *Service) analyze(ctx context.Context, req Request) intent.Result {
	if s.classifier != nil {
		return s.classifier.Classify(ctx, req.History, req.Text)
	}
	return intent.Analyze(req.Text)
}

// Respond implements Responder.
func (s *Service) Respond(ctx context.Context, req Request) (chat.Message, error) {
	start := time.Now()
	analysis := s.analyze(ctx, req)

	response, err := s.chain.Invoke(ctx, s.buildChainInput(req, analysis))
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "failed to run AI chain")
	}

	log.Info().
		Str("component", "ai").
		Str("conversation_id", req.ConversationID).
		Str("guide", req.Guide.ID).
		Int("length", len(response.Content)).
		Msg("generated response")
	return buildMessage(req, response.Content, analysis, start), nil
}

func (s *Service) buildChainInput(req Request, analysis intent.Result) map[string]any {
	system := s.prompts.BuildSystemPrompt(req.Guide, req.Language)
	if hint := IntentHint(analysis); hint != "" {
		system += "\n\n" + hint
	}
	return map[string]any{
		"system":  system,
		"history": buildHistoryMessages(req.History),
		"query":   req.Text,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, 2*(len(messages)-start))
	for _, msg := range messages[start:] {
		if msg.RequestText != "" {
			history = append(history, schema.UserMessage(msg.RequestText))
		}
		if msg.ResponseText != "" && !msg.Failed {
			history = append(history, schema.AssistantMessage(msg.ResponseText, nil))
		}
	}
	return history
}
