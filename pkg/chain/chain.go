package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// NoContentAnswer is returned without invoking the model when retrieval
// finds nothing inside the scope.
const NoContentAnswer = "I couldn't find any relevant content in the selected pages."

// LanguageModel is the completion surface the chain drives. Implemented
// by llm.ChatEngine.
type LanguageModel interface {
	Contextualize(ctx context.Context, question string, history []models.ChatTurn) (string, error)
	AnswerWithCitations(ctx context.Context, question, contextStr string, streamFn func(chunk []byte)) (string, error)
}

// Retriever is the scoped similarity search surface the chain drives.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope []string) ([]models.Fragment, error)
}

// ChatChain runs one query through the staged pipeline: contextualize the
// question against history, retrieve scoped fragments, assemble indexed
// context, generate an answer with forced citations, and validate the
// result. The chain holds no per-conversation state; callers own the
// history and append to it only after a successful turn.
type ChatChain struct {
	model     LanguageModel
	retriever Retriever
}

func New(model LanguageModel, retriever Retriever) *ChatChain {
	return &ChatChain{
		model:     model,
		retriever: retriever,
	}
}

type askOptions struct {
	streamFn func(chunk []byte)
}

type AskOption func(*askOptions)

// WithStream forwards raw completion chunks as they arrive. Streaming is
// a presentation concern; the returned ChatResult is identical.
func WithStream(fn func(chunk []byte)) AskOption {
	return func(o *askOptions) {
		o.streamFn = fn
	}
}

// Ask answers question against the given scope. The scope must have been
// synced beforehand; fragments outside it are never consulted.
func (c *ChatChain) Ask(ctx context.Context, question string, scope []string, history *models.ChatHistory, opts ...AskOption) (*models.ChatResult, error) {
	var options askOptions
	for _, opt := range opts {
		opt(&options)
	}

	query := question
	if history != nil && history.Len() > 0 {
		rewritten, err := c.model.Contextualize(ctx, question, history.Turns())
		if err != nil {
			return nil, err
		}
		query = rewritten
	}

	fragments, err := c.retriever.Retrieve(ctx, query, scope)
	if err != nil {
		return nil, err
	}

	if len(fragments) == 0 {
		return &models.ChatResult{
			Question: question,
			Answer:   models.CitedAnswer{Answer: NoContentAnswer},
		}, nil
	}

	raw, err := c.model.AnswerWithCitations(ctx, question, FormatFragments(fragments), options.streamFn)
	if err != nil {
		return nil, err
	}

	return &models.ChatResult{
		Question:  question,
		Fragments: fragments,
		Answer:    ParseCitedAnswer(raw, len(fragments)),
	}, nil
}

// FormatFragments renders the retrieved fragments as context blocks. The
// index is the fragment's position in the ranked list, the same index the
// model cites and the caller resolves.
func FormatFragments(fragments []models.Fragment) string {
	var b strings.Builder
	for i, fragment := range fragments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]\n%s", i, fragment.Text)
	}
	return b.String()
}
