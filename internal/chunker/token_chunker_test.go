package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docrag/internal/domain"
	"docrag/internal/tokenizer"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkSplitsIntoReservedWindows(t *testing.T) {
	tok := tokenizer.NewWordTokenizer()
	c := NewTokenChunker(tok, zaptest.NewLogger(t))
	meta := &domain.Metadata{FileName: "a.txt"}

	chunks, oversized, err := c.Chunk(words("w", 300), meta, 256)
	require.NoError(t, err)
	require.Empty(t, oversized)
	require.Len(t, chunks, 2)
	require.Equal(t, 254, chunks[0].TokenCount)
	require.Equal(t, 46, chunks[1].TokenCount)
	for _, ch := range chunks {
		require.Same(t, meta, ch.Metadata)
		require.LessOrEqual(t, len(tok.Encode(ch.Text)), 256)
	}
	require.True(t, strings.HasPrefix(chunks[0].Text, "w0 w1"))
	require.True(t, strings.HasPrefix(chunks[1].Text, "w254 "))
}

func TestChunkCountAndReconstruction(t *testing.T) {
	tok := tokenizer.NewWordTokenizer()
	c := NewTokenChunker(tok, zaptest.NewLogger(t))
	for _, n := range []int{1, 7, 8, 9, 50, 123} {
		for _, m := range []int{3, 4, 10, 64} {
			text := words("t", n)
			ids := tok.Encode(text)
			chunks, _, err := c.Chunk(text, &domain.Metadata{FileName: "x"}, m)
			require.NoError(t, err)
			window := m - ReservedTokens
			require.Len(t, chunks, (len(ids)+window-1)/window, "n=%d m=%d", n, m)

			var rebuilt []int
			for _, ch := range chunks {
				rebuilt = append(rebuilt, tok.Encode(ch.Text)...)
			}
			require.Equal(t, ids, rebuilt, "n=%d m=%d", n, m)
		}
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewTokenChunker(tokenizer.NewWordTokenizer(), nil)
	chunks, oversized, err := c.Chunk("", &domain.Metadata{FileName: "empty.txt"}, 256)
	require.NoError(t, err)
	require.Empty(t, chunks)
	require.Empty(t, oversized)
}

func TestChunkRejectsSmallLimit(t *testing.T) {
	c := NewTokenChunker(tokenizer.NewWordTokenizer(), nil)
	for _, m := range []int{-1, 0, 1, 2} {
		_, _, err := c.Chunk("some text", nil, m)
		require.Error(t, err)
		require.True(t, errors.Is(err, domain.ErrConfig))
	}
}

// inflatingTokenizer decodes to more tokens than it was given.
type inflatingTokenizer struct {
	*tokenizer.WordTokenizer
}

func (t inflatingTokenizer) Decode(ids []int) string {
	return t.WordTokenizer.Decode(ids) + " extra extra extra"
}

func TestChunkFlagsOversizedChunks(t *testing.T) {
	tok := inflatingTokenizer{tokenizer.NewWordTokenizer()}
	c := NewTokenChunker(tok, zaptest.NewLogger(t))

	chunks, oversized, err := c.Chunk("a b c d e f g h i j", &domain.Metadata{FileName: "f.txt"}, 6)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Len(t, oversized, 2)
	require.Equal(t, Oversize{FileName: "f.txt", Index: 0, Tokens: 7, Limit: 6}, oversized[0])
	require.Equal(t, Oversize{FileName: "f.txt", Index: 1, Tokens: 7, Limit: 6}, oversized[1])
}

func TestWindows(t *testing.T) {
	require.Nil(t, Windows(nil, 3))
	require.Nil(t, Windows([]int{1, 2}, 0))
	require.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, Windows([]int{1, 2, 3, 4, 5, 6, 7}, 3))

	ids := []int{1, 2, 3, 4}
	w := Windows(ids, 2)
	w[0] = append(w[0], 99)
	require.Equal(t, []int{1, 2, 3, 4}, ids, "appending to a window must not clobber the next one")
}
