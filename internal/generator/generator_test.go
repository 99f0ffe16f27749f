package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func results() []domain.SearchResult {
	a := &domain.Metadata{FileName: "bridges.txt"}
	b := &domain.Metadata{FileName: "cats.pdf"}
	return []domain.SearchResult{
		{Chunk: domain.Chunk{Text: "The bridge opened in 1932. It spans the harbour.", Metadata: a}, Score: 0.9},
		{Chunk: domain.Chunk{Text: "Cats sleep most of the day.", Metadata: b}, Score: 0.5},
		{Chunk: domain.Chunk{Text: "The bridge was painted grey.", Metadata: a}, Score: 0.4},
		{Chunk: domain.Chunk{Text: "orphan"}, Score: 0.1},
	}
}

func TestContextFormat(t *testing.T) {
	got := Context(results()[:2])
	require.Equal(t, "Source: bridges.txt\nThe bridge opened in 1932. It spans the harbour.\nSource: cats.pdf\nCats sleep most of the day.", got)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("When did it open?", results()[:1])
	require.True(t, strings.HasPrefix(p, "Use the context below to answer the question accurately:\n\nContext:\nSource: bridges.txt\n"))
	require.Contains(t, p, "\n\nQuestion: When did it open?\n\n")
	require.True(t, strings.HasSuffix(p, "including the source document name if relevant."))
}

func TestSources(t *testing.T) {
	require.Equal(t, []string{"bridges.txt", "cats.pdf", "Unknown"}, Sources(results()))
	require.Empty(t, Sources(nil))
}

func TestExtractive(t *testing.T) {
	g := NewExtractive(1)
	answer, err := g.Generate(context.Background(), "When was the bridge opened?", results())
	require.NoError(t, err)
	require.Equal(t, "The bridge opened in 1932.\n\nSources: bridges.txt, cats.pdf, Unknown", answer)

	empty, err := g.Generate(context.Background(), "anything", nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestExtractiveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractive(2).Generate(ctx, "q", results())
	require.ErrorIs(t, err, context.Canceled)
}
