package ai

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceylontrails/tourchat/internal/analysis/intent"
	"github.com/ceylontrails/tourchat/internal/model/chat"
	"github.com/ceylontrails/tourchat/internal/model/guide"
)

type recordingModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
	reply  string
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *recordingModel) BindTools([]*schema.ToolInfo) error { return nil }

func defaultGuide(t *testing.T) guide.Guide {
	t.Helper()
	g, ok := guide.NewMemoryStore(guide.Seed()).FindByID("heritage")
	require.True(t, ok)
	return g
}

func TestServiceRespondBuildsPromptAndMessage(t *testing.T) {
	fake := &recordingModel{reply: "  Sigiriya is a rock fortress in the Matale district.  "}
	svc, err := NewServiceWithModel(context.Background(), fake)
	require.NoError(t, err)

	history := []chat.Message{
		{RequestText: "Hello", ResponseText: "Welcome, traveller."},
		{RequestText: "Broken", ResponseText: "delivery failed", Failed: true},
	}
	msg, err := svc.Respond(context.Background(), Request{
		ConversationID: "c1",
		Guide:          defaultGuide(t),
		History:        history,
		Text:           "Where is Sigiriya?",
		Language:       "de",
	})
	require.NoError(t, err)

	assert.Equal(t, "Sigiriya is a rock fortress in the Matale district.", msg.ResponseText)
	assert.Equal(t, "Where is Sigiriya?", msg.RequestText)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "de", msg.Language)
	assert.Equal(t, string(intent.Attractions), msg.Intent)
	assert.NotEmpty(t, msg.Suggestions)

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	require.Len(t, input, 5)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "Dr. Perera")
	assert.Contains(t, input[0].Content, `"de"`)
	assert.Contains(t, input[0].Content, "Places mentioned: Sigiriya")
	assert.Equal(t, "Hello", input[1].Content)
	assert.Equal(t, schema.Assistant, input[2].Role)
	assert.Equal(t, "Broken", input[3].Content)
	assert.Equal(t, "Where is Sigiriya?", input[4].Content)
}

func TestHistoryIsLimited(t *testing.T) {
	var history []chat.Message
	for i := 0; i < 25; i++ {
		history = append(history, chat.Message{RequestText: "q", ResponseText: "a"})
	}
	assert.Len(t, buildHistoryMessages(history), 2*historyLimit)
	assert.Nil(t, buildHistoryMessages(nil))
}

func TestRuleResponder(t *testing.T) {
	g := defaultGuide(t)

	msg, err := RuleResponder{}.Respond(context.Background(), Request{Guide: g, Text: "Hello!"})
	require.NoError(t, err)
	assert.Equal(t, g.OpeningLine, msg.ResponseText)
	assert.Equal(t, "en", msg.Language)
	assert.Equal(t, string(intent.Greeting), msg.Intent)
	assert.GreaterOrEqual(t, msg.ResponseTimeMS, int64(0))

	msg, err = RuleResponder{}.Respond(context.Background(), Request{Guide: g, Text: "Where is Sigiriya?"})
	require.NoError(t, err)
	assert.Contains(t, msg.ResponseText, "Sigiriya")
	require.Len(t, msg.Entities, 1)

	msg, err = RuleResponder{}.Respond(context.Background(), Request{Guide: g, Text: "zzz"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ResponseText)
	assert.Equal(t, string(intent.General), msg.Intent)
}

func TestBuildSystemPromptFallsBackForUnknownGuide(t *testing.T) {
	pm := NewGuidePromptManager()
	prompt := pm.BuildSystemPrompt(guide.Guide{ID: "custom", Name: "Kasun", Title: "Surf coach", PromptHint: "Talk waves."}, "")
	assert.Contains(t, prompt, "You are Kasun, Surf coach")
	assert.Contains(t, prompt, "Talk waves.")
	assert.Contains(t, prompt, `"en"`)

	_, err := pm.GetPromptTemplate("custom")
	assert.Error(t, err)
}

func TestIntentHint(t *testing.T) {
	assert.Empty(t, IntentHint(intent.Result{Intent: intent.General}))
	hint := IntentHint(intent.Analyze("train from Kandy to Ella"))
	assert.Contains(t, hint, "transport")
	assert.Contains(t, hint, "Ella, Kandy")
}

type fixedClassifier struct {
	calls int
}

func (c *fixedClassifier) Classify(_ context.Context, history []chat.Message, text string) intent.Result {
	c.calls++
	return intent.Result{Intent: intent.Food, Confidence: 0.9, Suggestions: intent.SuggestionsFor(intent.Food)}
}

func TestServiceUsesClassifier(t *testing.T) {
	fake := &recordingModel{reply: "Try kottu."}
	svc, err := NewServiceWithModel(context.Background(), fake)
	require.NoError(t, err)
	assert.Same(t, fake, svc.ChatModel())

	classifier := &fixedClassifier{}
	svc.WithClassifier(classifier)

	msg, err := svc.Respond(context.Background(), Request{Guide: defaultGuide(t), Text: "I'm starving"})
	require.NoError(t, err)
	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, string(intent.Food), msg.Intent)
	assert.Contains(t, fake.inputs[0][0].Content, "food")
}
