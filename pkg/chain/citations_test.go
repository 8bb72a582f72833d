package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCitedAnswerValidatesCitations(t *testing.T) {
	raw := `{"answer":"Alpha is beta [2]. Gamma [0].","citations":[2,5,2,0]}`

	got := ParseCitedAnswer(raw, 3)
	assert.Equal(t, "Alpha is beta [2]. Gamma [0].", got.Answer)
	// Out-of-range indices dropped, duplicates keep first occurrence.
	assert.Equal(t, []int{2, 0}, got.Citations)
}

func TestParseCitedAnswerAllCitationsValid(t *testing.T) {
	raw := `{"answer":"ok","citations":[0,1]}`

	got := ParseCitedAnswer(raw, 2)
	assert.Equal(t, []int{0, 1}, got.Citations)
}

func TestParseCitedAnswerMalformedJSON(t *testing.T) {
	got := ParseCitedAnswer("  The model just wrote prose.  ", 3)
	assert.Equal(t, "The model just wrote prose.", got.Answer)
	assert.Empty(t, got.Citations)
}

func TestParseCitedAnswerEmptyPayload(t *testing.T) {
	got := ParseCitedAnswer("", 3)
	assert.Equal(t, NoAnswerText, got.Answer)
	assert.Empty(t, got.Citations)
}

func TestParseCitedAnswerEmptyAnswerField(t *testing.T) {
	got := ParseCitedAnswer(`{"answer":"  ","citations":[0]}`, 3)
	assert.Equal(t, NoAnswerText, got.Answer)
	assert.Equal(t, []int{0}, got.Citations)
}

func TestParseCitedAnswerNegativeIndexDropped(t *testing.T) {
	got := ParseCitedAnswer(`{"answer":"ok","citations":[-1,1]}`, 2)
	assert.Equal(t, []int{1}, got.Citations)
}
