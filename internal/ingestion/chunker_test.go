package ingestion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordsText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkerWindowAndOverlap(t *testing.T) {
	c := NewChunker(200, 50)

	chunks := c.Chunk(wordsText(500))
	require.Len(t, chunks, 4)

	// Stride is 150: chunk i starts at word 150*i.
	assert.True(t, strings.HasPrefix(chunks[0], "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1], "w150 "))
	assert.True(t, strings.HasPrefix(chunks[2], "w300 "))
	assert.True(t, strings.HasPrefix(chunks[3], "w450 "))

	assert.Len(t, strings.Fields(chunks[0]), 200)
	assert.Len(t, strings.Fields(chunks[3]), 50)
}

func TestChunkerShortText(t *testing.T) {
	c := NewChunker(200, 50)

	chunks := c.Chunk("just a few words")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0])
}

func TestChunkerExactWindow(t *testing.T) {
	c := NewChunker(200, 50)

	chunks := c.Chunk(wordsText(200))
	assert.Len(t, chunks, 1)
}

func TestChunkerEmpty(t *testing.T) {
	c := NewChunker(200, 50)

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkerDeterministic(t *testing.T) {
	c := NewChunker(200, 50)
	text := wordsText(777)

	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}
