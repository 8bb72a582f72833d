package retriever_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/pkg/retriever"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type fakeStore struct {
	fragments []models.Fragment
	err       error

	lastEmbedding []float32
	lastK         int
	lastScope     []string
}

func (s *fakeStore) UpsertFragments(_ context.Context, _ []models.Fragment) error { return nil }
func (s *fakeStore) DeleteByPage(_ context.Context, _ string) error               { return nil }

func (s *fakeStore) SimilaritySearch(_ context.Context, embedding []float32, k int, pageIDs []string) ([]models.Fragment, error) {
	s.lastEmbedding = embedding
	s.lastK = k
	s.lastScope = pageIDs
	return s.fragments, s.err
}

func (s *fakeStore) GetWatermarks(_ context.Context, _ []string) (map[string]models.PageWatermark, error) {
	return nil, nil
}

func (s *fakeStore) UpsertWatermarks(_ context.Context, _ []models.PageWatermark) error { return nil }
func (s *fakeStore) Close()                                                            {}

func TestRetrievePassesScopeAndLimit(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{fragments: []models.Fragment{{ID: "f1"}}}
	r := retriever.New(embedder, store, 4)

	fragments, err := r.Retrieve(context.Background(), "query", []string{"p1", "p2"})
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.lastEmbedding)
	assert.Equal(t, 4, store.lastK)
	assert.Equal(t, []string{"p1", "p2"}, store.lastScope)
}

func TestRetrieveEmptyScopeSkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	r := retriever.New(embedder, store, 0)

	fragments, err := r.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, fragments)
	assert.Equal(t, 0, embedder.calls)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	store := &fakeStore{}
	r := retriever.New(&fakeEmbedder{}, store, 0)

	_, err := r.Retrieve(context.Background(), "query", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, retriever.DefaultTopK, store.lastK)
}

func TestRetrieveEmbedderErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota")}
	r := retriever.New(embedder, &fakeStore{}, 0)

	_, err := r.Retrieve(context.Background(), "query", []string{"p1"})
	require.Error(t, err)
}

func TestRetrieveStoreErrorPropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	r := retriever.New(&fakeEmbedder{}, store, 0)

	_, err := r.Retrieve(context.Background(), "query", []string{"p1"})
	require.Error(t, err)
}
