package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 80))
	assert.Equal(t, strings.Repeat("a", 80), truncate(strings.Repeat("a", 80), 80))

	long := strings.Repeat("é", 100)
	got := truncate(long, 80)
	assert.Equal(t, strings.Repeat("é", 80)+"…", got)
	assert.True(t, utf8.ValidString(got))
}
