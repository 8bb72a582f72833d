package processor

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Processor splits flattened leaves into fragments. Splitting is
// recursive boundary-seeking: paragraph breaks first, then line breaks,
// then sentence breaks, then bare characters, with a fixed overlap
// carried between consecutive chunks of the same leaf. Fragments never
// cross leaf or page boundaries.
type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	return Processor{
		config:   config,
		splitter: splitter,
	}
}

// Process chunks each leaf independently, tagging every fragment with the
// owning page id and the leaf's source block id. Output is deterministic
// for identical input.
func (p *Processor) Process(pageID string, leaves []models.Leaf) ([]models.Fragment, error) {
	var fragments []models.Fragment

	for _, leaf := range leaves {
		chunks, err := p.splitter.SplitText(leaf.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split block %s: %w", leaf.BlockID, err)
		}
		for _, chunk := range chunks {
			if chunk == "" {
				continue
			}
			fragments = append(fragments, models.Fragment{
				PageID:  pageID,
				BlockID: leaf.BlockID,
				Text:    chunk,
			})
		}
	}

	return fragments, nil
}
