package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/internal/types"
	"github.com/yk9331/logseq-rag-chatbot/pkg/flatten"
)

type IndexerConfig struct {
	EmbedBatchSize int
	// OnProgress is called after each page finishes, with the page name.
	OnProgress func(pageName string)
}

// Indexer brings the vector store up to date for a retrieval scope with
// minimal re-embedding work: only pages whose revision moved past their
// persisted watermark are rebuilt. It performs no locking; callers must
// not run overlapping scopes concurrently.
type Indexer struct {
	config   IndexerConfig
	graph    types.Graph
	embedder types.Embedder
	chunker  types.Chunker
	store    types.VectorStore
}

func NewWithConfig(config IndexerConfig, graph types.Graph, embedder types.Embedder, chunker types.Chunker, store types.VectorStore) *Indexer {
	if config.EmbedBatchSize == 0 {
		config.EmbedBatchSize = 100
	}

	return &Indexer{
		config:   config,
		graph:    graph,
		embedder: embedder,
		chunker:  chunker,
		store:    store,
	}
}

// Sync indexes the selected page and, optionally, its linked pages, and
// returns the pages that now form the retrieval scope. On return every
// page in scope has fragments reflecting a revision at least as new as
// observed at the start of the call. Any embedding or store error aborts
// the invocation; a page whose rebuild did not complete keeps its stale
// watermark and is retried on the next call.
func (ix *Indexer) Sync(ctx context.Context, pageName string, includeLinked bool) ([]models.Page, error) {
	contents, err := flatten.CollectPages(ctx, ix.graph, pageName, includeLinked)
	if err != nil {
		return nil, err
	}

	pageIDs := make([]string, len(contents))
	for i, content := range contents {
		pageIDs[i] = content.Page.ID
	}

	watermarks, err := ix.store.GetWatermarks(ctx, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load watermarks: %w", err)
	}

	pages := make([]models.Page, 0, len(contents))
	for _, content := range contents {
		pages = append(pages, content.Page)

		wm, ok := watermarks[content.Page.ID]
		if ok && wm.UpdatedAt >= content.Page.UpdatedAt {
			// Fragments are current, nothing to rebuild.
			if ix.config.OnProgress != nil {
				ix.config.OnProgress(content.Page.Name)
			}
			continue
		}

		if err := ix.rebuildPage(ctx, content); err != nil {
			return nil, err
		}
		if ix.config.OnProgress != nil {
			ix.config.OnProgress(content.Page.Name)
		}
	}

	// Watermarks advance for every page in scope, stale and current
	// alike, so an unchanged page is not re-inspected next time.
	updated := make([]models.PageWatermark, len(pages))
	for i, page := range pages {
		updated[i] = models.PageWatermark{
			PageID:    page.ID,
			Name:      page.Name,
			UpdatedAt: page.UpdatedAt,
		}
	}
	if err := ix.store.UpsertWatermarks(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to upsert watermarks: %w", err)
	}

	return pages, nil
}

func (ix *Indexer) rebuildPage(ctx context.Context, content flatten.PageContent) error {
	if err := ix.store.DeleteByPage(ctx, content.Page.ID); err != nil {
		return err
	}

	fragments, err := ix.chunker.Process(content.Page.ID, content.Leaves)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		return nil
	}

	for start := 0; start < len(fragments); start += ix.config.EmbedBatchSize {
		end := start + ix.config.EmbedBatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]

		texts := make([]string, len(batch))
		for i, fragment := range batch {
			texts[i] = fragment.Text
		}

		vectors, err := ix.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed page %s: %w", content.Page.Name, err)
		}

		for i := range batch {
			batch[i].ID = uuid.NewString()
			batch[i].Embedding = vectors[i]
		}

		if err := ix.store.UpsertFragments(ctx, batch); err != nil {
			return fmt.Errorf("failed to store fragments for page %s: %w", content.Page.Name, err)
		}
	}

	return nil
}
