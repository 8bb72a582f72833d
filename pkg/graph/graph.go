package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// Client talks to the Logseq desktop HTTP API server. Every Editor call
// is a POST to /api with {"method": ..., "args": [...]}.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:12315"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type apiRequest struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

func (c *Client) call(ctx context.Context, method string, args []any, out any) error {
	body, err := json.Marshal(apiRequest{Method: method, Args: args})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call logseq api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logseq api error: %d - %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetPage resolves a page by name or uuid. A missing page is fatal to the
// caller, so it surfaces as models.ErrPageNotFound rather than nil.
func (c *Client) GetPage(ctx context.Context, name string) (*models.Page, error) {
	var page *models.Page
	if err := c.call(ctx, "logseq.Editor.getPage", []any{name}, &page); err != nil {
		return nil, err
	}
	if page == nil || page.ID == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrPageNotFound, name)
	}
	return page, nil
}

func (c *Client) GetPageBlocksTree(ctx context.Context, name string) ([]models.Block, error) {
	var blocks []models.Block
	if err := c.call(ctx, "logseq.Editor.getPageBlocksTree", []any{name}, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// GetBlock looks a block up by uuid. A missing block resolves to
// (nil, nil): a deleted reference is an empty subtree, not an error.
func (c *Client) GetBlock(ctx context.Context, uuid string, includeChildren bool) (*models.Block, error) {
	var block *models.Block
	opts := map[string]any{"includeChildren": includeChildren}
	if err := c.call(ctx, "logseq.Editor.getBlock", []any{uuid, opts}, &block); err != nil {
		return nil, err
	}
	if block == nil || block.UUID == "" {
		return nil, nil
	}
	return block, nil
}

// GetPageLinkedReferences returns the pages that link to the given page.
// The API answers with [page, refBlocks] tuples; only the page halves are
// kept here.
func (c *Client) GetPageLinkedReferences(ctx context.Context, name string) ([]models.Page, error) {
	var refs [][]json.RawMessage
	if err := c.call(ctx, "logseq.Editor.getPageLinkedReferences", []any{name}, &refs); err != nil {
		return nil, err
	}

	var pages []models.Page
	for _, ref := range refs {
		if len(ref) == 0 {
			continue
		}
		var page models.Page
		if err := json.Unmarshal(ref[0], &page); err != nil {
			continue
		}
		if page.Name != "" {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (c *Client) GetAllPages(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	if err := c.call(ctx, "logseq.Editor.getAllPages", []any{}, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// SelectablePages filters out journal pages and orders the rest most
// recently updated first, the order page pickers present them in.
func SelectablePages(pages []models.Page) []models.Page {
	selectable := make([]models.Page, 0, len(pages))
	for _, page := range pages {
		if !page.Journal {
			selectable = append(selectable, page)
		}
	}
	sort.Slice(selectable, func(i, j int) bool {
		return selectable[i].UpdatedAt > selectable[j].UpdatedAt
	})
	return selectable
}

// DisplayName prefers the page's original cased name over the
// normalized one.
func DisplayName(page models.Page) string {
	if page.OriginalName != "" {
		return page.OriginalName
	}
	return page.Name
}
