package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

type VectorStoreConfig struct {
	ConnString     string
	FragmentTable  string
	WatermarkTable string
	VectorDim      int
	BatchSize      int
	SearchLimit    int
}

// VectorStore keeps embedded fragments and per-page watermarks in
// PostgreSQL with the pgvector extension.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.FragmentTable == "" {
		config.FragmentTable = "fragments"
	}
	if config.WatermarkTable == "" {
		config.WatermarkTable = "page_watermarks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 6
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createFragments := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			block_id TEXT NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.FragmentTable, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createFragments)
	if err != nil {
		return fmt.Errorf("failed to create fragment table: %v", err)
	}

	// Scope filtering happens per page, so page_id gets its own index.
	createPageIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_page_id_idx
		ON %s (page_id)`,
		vs.config.FragmentTable, vs.config.FragmentTable)

	_, err = vs.pool.Exec(ctx, createPageIndex)
	if err != nil {
		return fmt.Errorf("failed to create page index: %v", err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.FragmentTable, vs.config.FragmentTable)

	_, err = vs.pool.Exec(ctx, createVectorIndex)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %v", err)
	}

	createWatermarks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			page_id TEXT PRIMARY KEY,
			name TEXT,
			updated_at BIGINT NOT NULL
		)`, vs.config.WatermarkTable)

	_, err = vs.pool.Exec(ctx, createWatermarks)
	if err != nil {
		return fmt.Errorf("failed to create watermark table: %v", err)
	}

	return nil
}

// UpsertFragments writes embedded fragments in one transaction.
func (vs *VectorStore) UpsertFragments(ctx context.Context, fragments []models.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, page_id, block_id, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			page_id = EXCLUDED.page_id,
			block_id = EXCLUDED.block_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.FragmentTable)

	batch := &pgx.Batch{}
	for _, fragment := range fragments {
		batch.Queue(stmt,
			fragment.ID,
			fragment.PageID,
			fragment.BlockID,
			sanitizeUTF8(fragment.Text),
			pgvector.NewVector(fragment.Embedding),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range fragments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert fragment: %v", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to flush fragment batch: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// DeleteByPage removes every fragment of a page. Deleting zero rows is
// not an error.
func (vs *VectorStore) DeleteByPage(ctx context.Context, pageID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE page_id = $1", vs.config.FragmentTable)
	if _, err := vs.pool.Exec(ctx, stmt, pageID); err != nil {
		return fmt.Errorf("failed to delete fragments for page %s: %v", pageID, err)
	}
	return nil
}

// SimilaritySearch returns the k fragments nearest to the query
// embedding, restricted server-side to the given page ids. An empty
// scope yields an empty result.
func (vs *VectorStore) SimilaritySearch(ctx context.Context, embedding []float32, k int, pageIDs []string) ([]models.Fragment, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	if k == 0 {
		k = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, page_id, block_id, content
		FROM %s
		WHERE page_id = ANY($2)
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.config.FragmentTable)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), pageIDs, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %v", err)
	}
	defer rows.Close()

	var fragments []models.Fragment
	for rows.Next() {
		var fragment models.Fragment
		err := rows.Scan(
			&fragment.ID,
			&fragment.PageID,
			&fragment.BlockID,
			&fragment.Text,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		fragments = append(fragments, fragment)
	}

	return fragments, rows.Err()
}

// GetWatermarks fetches the persisted watermarks for the given page ids,
// keyed by page id. Pages never synced are simply absent.
func (vs *VectorStore) GetWatermarks(ctx context.Context, pageIDs []string) (map[string]models.PageWatermark, error) {
	watermarks := make(map[string]models.PageWatermark)
	if len(pageIDs) == 0 {
		return watermarks, nil
	}

	query := fmt.Sprintf(`
		SELECT page_id, name, updated_at
		FROM %s
		WHERE page_id = ANY($1)`,
		vs.config.WatermarkTable)

	rows, err := vs.pool.Query(ctx, query, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query watermarks: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wm models.PageWatermark
		if err := rows.Scan(&wm.PageID, &wm.Name, &wm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %v", err)
		}
		watermarks[wm.PageID] = wm
	}

	return watermarks, rows.Err()
}

// UpsertWatermarks records the last-synced revision for each page,
// insert-or-update keyed by page id.
func (vs *VectorStore) UpsertWatermarks(ctx context.Context, watermarks []models.PageWatermark) error {
	if len(watermarks) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (page_id, name, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (page_id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at`,
		vs.config.WatermarkTable)

	batch := &pgx.Batch{}
	for _, wm := range watermarks {
		batch.Queue(stmt, wm.PageID, sanitizeUTF8(wm.Name), wm.UpdatedAt)
	}

	results := vs.pool.SendBatch(ctx, batch)
	for range watermarks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert watermark: %v", err)
		}
	}
	return results.Close()
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
