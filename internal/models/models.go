package models

import (
	"encoding/json"
	"fmt"
)

// Page is a top-level Logseq page. Pages are owned by the graph and
// read-only here; UpdatedAt is the revision timestamp in milliseconds.
type Page struct {
	ID           string `json:"uuid"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	UpdatedAt    int64  `json:"updatedAt"`
	Journal      bool   `json:"journal?"`
}

// Block is a node in a page's content tree.
type Block struct {
	UUID     string       `json:"uuid"`
	Content  string       `json:"content"`
	Children []BlockChild `json:"children"`
}

// BlockChild is either an inline child block or a reference to a block
// stored out of tree. The Logseq API serialises references as a
// two-element ["uuid", "<id>"] tuple and inline children as objects.
type BlockChild struct {
	Inline *Block
	Ref    string
}

func (c *BlockChild) UnmarshalJSON(data []byte) error {
	var block Block
	if err := json.Unmarshal(data, &block); err == nil {
		c.Inline = &block
		return nil
	}

	var tuple []string
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) != 2 || tuple[0] != "uuid" {
			return fmt.Errorf("unexpected block reference tuple: %v", tuple)
		}
		c.Ref = tuple[1]
		return nil
	}

	return fmt.Errorf("block child is neither a block nor a uuid tuple")
}

func (c BlockChild) MarshalJSON() ([]byte, error) {
	if c.Inline != nil {
		return json.Marshal(c.Inline)
	}
	return json.Marshal([]string{"uuid", c.Ref})
}

// Leaf is a flattened, non-empty text unit extracted from a block tree.
// BlockID is the id of the block that contributed the text.
type Leaf struct {
	BlockID string
	Text    string
}

// Fragment is an embedded, independently retrievable chunk of text.
type Fragment struct {
	ID        string
	PageID    string
	BlockID   string
	Text      string
	Embedding []float32
}

// PageWatermark records the last-synced revision of a page. Fragments in
// the vector store are current iff UpdatedAt >= the page's UpdatedAt.
type PageWatermark struct {
	PageID    string
	Name      string
	UpdatedAt int64
}

// CitedAnswer is the validated output of one chat turn.
type CitedAnswer struct {
	Answer    string `json:"answer"`
	Citations []int  `json:"citations"`
}

// ChatResult bundles everything a caller needs to render one turn:
// the question as asked, the retrieved fragments in ranked order, and
// the answer whose citation indices point into that same list.
type ChatResult struct {
	Question  string
	Fragments []Fragment
	Answer    CitedAnswer
}
