package types

import (
	"context"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// Graph is the Logseq document store boundary. Lookups that miss return
// (nil, nil) except GetPage, which returns models.ErrPageNotFound.
type Graph interface {
	GetPage(ctx context.Context, name string) (*models.Page, error)
	GetPageBlocksTree(ctx context.Context, name string) ([]models.Block, error)
	GetBlock(ctx context.Context, uuid string, includeChildren bool) (*models.Block, error)
	GetPageLinkedReferences(ctx context.Context, name string) ([]models.Page, error)
	GetAllPages(ctx context.Context) ([]models.Page, error)
}

// Embedder turns texts into embedding vectors, one vector per input.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists fragments and page watermarks and answers scoped
// similarity queries.
type VectorStore interface {
	UpsertFragments(ctx context.Context, fragments []models.Fragment) error
	DeleteByPage(ctx context.Context, pageID string) error
	SimilaritySearch(ctx context.Context, embedding []float32, k int, pageIDs []string) ([]models.Fragment, error)
	GetWatermarks(ctx context.Context, pageIDs []string) (map[string]models.PageWatermark, error)
	UpsertWatermarks(ctx context.Context, watermarks []models.PageWatermark) error
	Close()
}

// Chunker splits flattened leaves into fragments with provenance.
type Chunker interface {
	Process(pageID string, leaves []models.Leaf) ([]models.Fragment, error)
}
