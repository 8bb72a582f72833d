package flatten

import (
	"context"
	"errors"
	"strings"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/internal/types"
)

// PageContent pairs a page with its flattened leaves.
type PageContent struct {
	Page   models.Page
	Leaves []models.Leaf
}

// Flatten walks a page's block trees in pre-order and returns one leaf
// per block with non-empty trimmed content. Blocks with empty content
// contribute nothing themselves but their children are still walked.
// Reference children are resolved through the graph; a reference that no
// longer resolves is treated as an empty subtree.
func Flatten(ctx context.Context, g types.Graph, blocks []models.Block) ([]models.Leaf, error) {
	var leaves []models.Leaf
	for i := range blocks {
		sub, err := flattenTree(ctx, g, &blocks[i])
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, sub...)
	}
	return leaves, nil
}

func flattenTree(ctx context.Context, g types.Graph, b *models.Block) ([]models.Leaf, error) {
	var leaves []models.Leaf

	trimmed := strings.TrimSpace(b.Content)
	if len(trimmed) > 0 {
		leaves = append(leaves, models.Leaf{BlockID: b.UUID, Text: trimmed})
	}

	for _, child := range b.Children {
		block := child.Inline
		if block == nil {
			resolved, err := g.GetBlock(ctx, child.Ref, true)
			if err != nil {
				return nil, err
			}
			if resolved == nil {
				continue
			}
			block = resolved
		}

		sub, err := flattenTree(ctx, g, block)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, sub...)
	}

	return leaves, nil
}

// CollectPages resolves the retrieval scope for a selected page: the page
// itself plus, when includeLinked is set, every page linking to it, each
// flattened to leaves. The selected page must exist; linked pages that
// have vanished are skipped.
func CollectPages(ctx context.Context, g types.Graph, pageName string, includeLinked bool) ([]PageContent, error) {
	selected, err := collectPage(ctx, g, pageName)
	if err != nil {
		return nil, err
	}

	contents := []PageContent{*selected}
	if !includeLinked {
		return contents, nil
	}

	refs, err := g.GetPageLinkedReferences(ctx, selected.Page.Name)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{selected.Page.ID: true}
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		content, err := collectPage(ctx, g, ref.Name)
		if errors.Is(err, models.ErrPageNotFound) {
			// A reference to a page deleted mid-walk is not fatal.
			continue
		}
		if err != nil {
			return nil, err
		}
		seen[content.Page.ID] = true
		contents = append(contents, *content)
	}

	return contents, nil
}

func collectPage(ctx context.Context, g types.Graph, pageName string) (*PageContent, error) {
	page, err := g.GetPage(ctx, pageName)
	if err != nil {
		return nil, err
	}

	blocks, err := g.GetPageBlocksTree(ctx, page.Name)
	if err != nil {
		return nil, err
	}

	leaves, err := Flatten(ctx, g, blocks)
	if err != nil {
		return nil, err
	}

	return &PageContent{Page: *page, Leaves: leaves}, nil
}
