package retriever

import (
	"context"
	"fmt"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/internal/types"
)

// DefaultTopK matches the retriever fan-out used for context assembly.
const DefaultTopK = 6

// Retriever answers similarity queries restricted to an explicit page
// scope. The scope filter runs inside the store query, never as a
// post-filter.
type Retriever struct {
	embedder types.Embedder
	store    types.VectorStore
	topK     int
}

func New(embedder types.Embedder, store types.VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		topK:     topK,
	}
}

// Retrieve embeds the query and returns the nearest fragments within
// scope, ranked by descending similarity. An empty scope returns an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, scope []string) ([]models.Fragment, error) {
	if len(scope) == 0 {
		return nil, nil
	}

	vectors, err := r.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	fragments, err := r.store.SimilaritySearch(ctx, vectors[0], r.topK, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to search fragments: %w", err)
	}
	return fragments, nil
}
