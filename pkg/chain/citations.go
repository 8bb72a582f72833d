package chain

import (
	"encoding/json"
	"strings"

	"github.com/yk9331/logseq-rag-chatbot/internal/models"
)

// NoAnswerText is substituted when the model returns nothing usable.
const NoAnswerText = "I don't have an answer for that."

// ParseCitedAnswer decodes the raw cited_answer tool output and validates
// it against the retrieved fragment count. Malformed payloads and bad
// citation indices are data-quality defects, not failures: the payload
// degrades to an uncited or no-answer result, indices outside [0, n) are
// dropped, and duplicates keep only their first occurrence.
func ParseCitedAnswer(raw string, fragmentCount int) models.CitedAnswer {
	var decoded models.CitedAnswer
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		// Plain text from a model that ignored the tool binding.
		text := strings.TrimSpace(raw)
		if text == "" {
			text = NoAnswerText
		}
		return models.CitedAnswer{Answer: text}
	}

	if strings.TrimSpace(decoded.Answer) == "" {
		decoded.Answer = NoAnswerText
	}

	seen := make(map[int]bool)
	valid := decoded.Citations[:0]
	for _, idx := range decoded.Citations {
		if idx < 0 || idx >= fragmentCount || seen[idx] {
			continue
		}
		seen[idx] = true
		valid = append(valid, idx)
	}
	decoded.Citations = valid

	return decoded
}
