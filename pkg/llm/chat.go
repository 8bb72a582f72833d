package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string // optional extra instruction prepended to answers
	MaxAttempts  int
}

// ChatEngine runs the two completion stages of a query: contextualizing a
// follow-up question against history, and generating a grounded answer
// with forced citation output.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Contextualize rewrites a follow-up question into a standalone retrieval
// query. With empty history the question is returned verbatim and no
// completion round trip happens.
func (ce *ChatEngine) Contextualize(ctx context.Context, question string, history []models.ChatTurn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	content := make([]llms.MessageContent, 0, len(history)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, contextualizeSystemPrompt))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Text))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, question))

	var response *llms.ContentResponse
	err := withRetry(ctx, ce.config.MaxAttempts, func() error {
		var genErr error
		response, genErr = ce.llm.GenerateContent(ctx, content,
			llms.WithTemperature(0),
			llms.WithMaxTokens(ce.config.MaxTokens),
		)
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to contextualize question: %w", err)
	}
	if len(response.Choices) == 0 {
		return question, nil
	}

	rewritten := strings.TrimSpace(response.Choices[0].Content)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// AnswerWithCitations generates an answer grounded in contextStr and
// returns the raw arguments of the forced cited_answer tool call. An
// optional streamFn receives token chunks as they arrive; the returned
// payload is always the complete one.
func (ce *ChatEngine) AnswerWithCitations(ctx context.Context, question, contextStr string, streamFn func(chunk []byte)) (string, error) {
	system := fmt.Sprintf(answerSystemPrompt, contextStr)
	if ce.config.SystemPrompt != "" {
		system = ce.config.SystemPrompt + "\n\n" + system
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTools([]llms.Tool{citedAnswerTool}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: CitedAnswerToolName},
		}),
	}
	if streamFn != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamFn(chunk)
			return nil
		}))
	}

	var response *llms.ContentResponse
	err := withRetry(ctx, ce.config.MaxAttempts, func() error {
		var genErr error
		response, genErr = ce.llm.GenerateContent(ctx, content, callOpts...)
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", nil
	}
	choice := response.Choices[0]
	for _, call := range choice.ToolCalls {
		if call.FunctionCall != nil && call.FunctionCall.Name == CitedAnswerToolName {
			return call.FunctionCall.Arguments, nil
		}
	}
	// Some models answer in plain text despite the forced tool; the
	// parser downgrades this to an uncited answer.
	return choice.Content, nil
}
