package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// fakeLLM records the last GenerateContent call and returns a canned
// response, driving any streaming func the caller installed.
type fakeLLM struct {
	response *llms.ContentResponse
	err      error

	calls        int
	lastMessages []llms.MessageContent
	lastOptions  llms.CallOptions
	streamChunks []string
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.lastMessages = messages
	f.lastOptions = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.lastOptions)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.lastOptions.StreamingFunc != nil {
		for _, chunk := range f.streamChunks {
			if err := f.lastOptions.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return f.response, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := f.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return response.Choices[0].Content, nil
}

func newTestEngine(fake *fakeLLM) *ChatEngine {
	return &ChatEngine{
		config: ChatConfig{MaxTokens: 1000, MaxAttempts: 1},
		llm:    fake,
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolResponse(arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				FunctionCall: &llms.FunctionCall{
					Name:      CitedAnswerToolName,
					Arguments: arguments,
				},
			}},
		}},
	}
}

func TestNewWithConfigValidation(t *testing.T) {
	_, err := NewWithConfig(ChatConfig{Temperature: 2.5})
	require.Error(t, err)

	_, err = NewWithConfig(ChatConfig{MaxTokens: -1})
	require.Error(t, err)
}

func TestContextualizeEmptyHistorySkipsModel(t *testing.T) {
	fake := &fakeLLM{}
	engine := newTestEngine(fake)

	got, err := engine.Contextualize(context.Background(), "what is alpha?", nil)
	require.NoError(t, err)
	assert.Equal(t, "what is alpha?", got)
	assert.Equal(t, 0, fake.calls)
}

func TestContextualizeBuildsConversation(t *testing.T) {
	fake := &fakeLLM{response: textResponse("  what is alpha made of?  ")}
	engine := newTestEngine(fake)

	history := []models.ChatTurn{
		{Role: models.RoleUser, Text: "what is alpha?"},
		{Role: models.RoleAssistant, Text: "a thing"},
	}

	got, err := engine.Contextualize(context.Background(), "what is it made of?", history)
	require.NoError(t, err)
	assert.Equal(t, "what is alpha made of?", got)

	require.Len(t, fake.lastMessages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.lastMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.lastMessages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.lastMessages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.lastMessages[3].Role)
	// Rewriting runs deterministic.
	assert.Equal(t, 0.0, fake.lastOptions.Temperature)
}

func TestContextualizeEmptyRewriteFallsBack(t *testing.T) {
	fake := &fakeLLM{response: textResponse("   ")}
	engine := newTestEngine(fake)

	got, err := engine.Contextualize(context.Background(), "original", []models.ChatTurn{
		{Role: models.RoleUser, Text: "q"},
		{Role: models.RoleAssistant, Text: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "original", got)
}

func TestAnswerWithCitationsReturnsToolArguments(t *testing.T) {
	raw := `{"answer":"alpha is a thing [0]","citations":[0]}`
	fake := &fakeLLM{response: toolResponse(raw)}
	engine := newTestEngine(fake)

	got, err := engine.AnswerWithCitations(context.Background(), "what is alpha?", "[0]\nalpha is a thing", nil)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	require.Len(t, fake.lastOptions.Tools, 1)
	assert.Equal(t, CitedAnswerToolName, fake.lastOptions.Tools[0].Function.Name)
	require.NotNil(t, fake.lastOptions.ToolChoice)
}

func TestAnswerWithCitationsPlainTextFallback(t *testing.T) {
	fake := &fakeLLM{response: textResponse("prose answer")}
	engine := newTestEngine(fake)

	got, err := engine.AnswerWithCitations(context.Background(), "q", "context", nil)
	require.NoError(t, err)
	assert.Equal(t, "prose answer", got)
}

func TestAnswerWithCitationsStreams(t *testing.T) {
	fake := &fakeLLM{
		response:     toolResponse(`{"answer":"ok","citations":[]}`),
		streamChunks: []string{"ok"},
	}
	engine := newTestEngine(fake)

	var streamed []byte
	_, err := engine.AnswerWithCitations(context.Background(), "q", "context", func(chunk []byte) {
		streamed = append(streamed, chunk...)
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(streamed))
}

func TestAnswerWithCitationsExtraSystemPrompt(t *testing.T) {
	fake := &fakeLLM{response: toolResponse(`{"answer":"ok","citations":[]}`)}
	engine := newTestEngine(fake)
	engine.config.SystemPrompt = "Answer in French."

	_, err := engine.AnswerWithCitations(context.Background(), "q", "context", nil)
	require.NoError(t, err)

	system, ok := fake.lastMessages[0].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, system.Text, "Answer in French.")
	assert.Contains(t, system.Text, "context")
}
