package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/pkg/chain"
	"github.com/yk9331/logseq-rag-chatbot/pkg/indexer"
	"github.com/yk9331/logseq-rag-chatbot/pkg/processor"
)

type fakeGraph struct {
	pages map[string]*models.Page
	trees map[string][]models.Block
	all   []models.Page
}

func (g *fakeGraph) GetPage(_ context.Context, name string) (*models.Page, error) {
	page, ok := g.pages[name]
	if !ok {
		return nil, models.ErrPageNotFound
	}
	return page, nil
}

func (g *fakeGraph) GetPageBlocksTree(_ context.Context, name string) ([]models.Block, error) {
	return g.trees[name], nil
}

func (g *fakeGraph) GetBlock(_ context.Context, _ string, _ bool) (*models.Block, error) {
	return nil, nil
}

func (g *fakeGraph) GetPageLinkedReferences(_ context.Context, _ string) ([]models.Page, error) {
	return nil, nil
}

func (g *fakeGraph) GetAllPages(_ context.Context) ([]models.Page, error) {
	return g.all, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

type fakeStore struct {
	fragments  map[string][]models.Fragment
	watermarks map[string]models.PageWatermark
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fragments:  make(map[string][]models.Fragment),
		watermarks: make(map[string]models.PageWatermark),
	}
}

func (s *fakeStore) UpsertFragments(_ context.Context, fragments []models.Fragment) error {
	for _, f := range fragments {
		s.fragments[f.PageID] = append(s.fragments[f.PageID], f)
	}
	return nil
}

func (s *fakeStore) DeleteByPage(_ context.Context, pageID string) error {
	delete(s.fragments, pageID)
	return nil
}

func (s *fakeStore) SimilaritySearch(_ context.Context, _ []float32, _ int, pageIDs []string) ([]models.Fragment, error) {
	var out []models.Fragment
	for _, id := range pageIDs {
		out = append(out, s.fragments[id]...)
	}
	return out, nil
}

func (s *fakeStore) GetWatermarks(_ context.Context, pageIDs []string) (map[string]models.PageWatermark, error) {
	out := make(map[string]models.PageWatermark)
	for _, id := range pageIDs {
		if wm, ok := s.watermarks[id]; ok {
			out[id] = wm
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertWatermarks(_ context.Context, watermarks []models.PageWatermark) error {
	for _, wm := range watermarks {
		s.watermarks[wm.PageID] = wm
	}
	return nil
}

func (s *fakeStore) Close() {}

type fakeModel struct{}

func (fakeModel) Contextualize(_ context.Context, question string, _ []models.ChatTurn) (string, error) {
	return question, nil
}

func (fakeModel) AnswerWithCitations(_ context.Context, _, _ string, _ func(chunk []byte)) (string, error) {
	return `{"answer":"alpha is a thing [0]","citations":[0]}`, nil
}

type fakeRetriever struct {
	store *fakeStore
}

func (r *fakeRetriever) Retrieve(ctx context.Context, _ string, scope []string) ([]models.Fragment, error) {
	return r.store.SimilaritySearch(ctx, nil, 0, scope)
}

func dialTestServer(t *testing.T) *websocket.Conn {
	t.Helper()

	graph := &fakeGraph{
		pages: map[string]*models.Page{
			"alpha": {ID: "p-alpha", Name: "alpha", UpdatedAt: 100},
		},
		trees: map[string][]models.Block{
			"alpha": {{UUID: "b1", Content: "alpha is a thing"}},
		},
		all: []models.Page{
			{ID: "p-alpha", Name: "alpha", UpdatedAt: 100},
			{ID: "p-journal", Name: "aug 30th, 2026", UpdatedAt: 300, Journal: true},
			{ID: "p-beta", Name: "beta", OriginalName: "Beta", UpdatedAt: 200},
		},
	}
	store := newFakeStore()
	chunker := processor.NewWithConfig(processor.ProcessorConfig{})
	index := indexer.NewWithConfig(indexer.IndexerConfig{}, graph, fakeEmbedder{}, &chunker, store)
	ragChain := chain.New(fakeModel{}, &fakeRetriever{store: store})

	srv := New(ragChain, index, graph, Config{})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWebSocket))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestQuestionBeforePageSelection(t *testing.T) {
	conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "anything?"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "No page selected", msg.Content)
}

func TestSelectPageAndAsk(t *testing.T) {
	conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "select_page", Content: "alpha"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)

	msg = readMessage(t, conn)
	require.Equal(t, "scope", msg.Type)
	names, ok := msg.Data.([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"alpha"}, names)

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "what is alpha?"}))
	msg = readMessage(t, conn)
	require.Equal(t, "response", msg.Type)
	assert.Equal(t, "alpha is a thing [0]", msg.Content)

	sources, ok := msg.Data.([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
	source, ok := sources[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "b1", source["block_id"])
	assert.Equal(t, "p-alpha", source["page_id"])
}

func TestSelectMissingPage(t *testing.T) {
	conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "select_page", Content: "nope"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)

	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "Page not found")
}

func TestListPages(t *testing.T) {
	conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "list_pages"}))
	msg := readMessage(t, conn)
	require.Equal(t, "pages", msg.Type)

	names, ok := msg.Data.([]any)
	require.True(t, ok)
	// Journals are filtered out, most recently updated first, original
	// casing preferred.
	assert.Equal(t, []any{"Beta", "alpha"}, names)
}

func TestUnknownMessageType(t *testing.T) {
	conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "bogus"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "unknown message type")
}
