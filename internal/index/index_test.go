package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func entry(text, file string, vec ...float32) Entry {
	return Entry{Vector: vec, Text: text, Metadata: &domain.Metadata{FileName: file}}
}

func TestSearchRanksBestFirst(t *testing.T) {
	idx, err := New(Cosine, []Entry{
		entry("A", "a.txt", 1, 0),
		entry("B", "b.txt", 0, 1),
		entry("C", "c.txt", 0.7, 0.7),
	})
	require.NoError(t, err)

	res, err := idx.Search([]float32{0.9, 0.1}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "A", res[0].Chunk.Text)
	require.Equal(t, "C", res[1].Chunk.Text)
	require.Equal(t, "B", res[2].Chunk.Text)
	require.Equal(t, "a.txt", res[0].Chunk.FileName())
	for i := 1; i < len(res); i++ {
		require.Greater(t, res[i-1].Score, res[i].Score)
	}
}

func TestSearchTopKBounds(t *testing.T) {
	idx, err := New(Cosine, []Entry{entry("A", "a", 1, 0), entry("B", "b", 0, 1)})
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 2)

	res, err = idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)

	res, err = idx.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, res, 2, "non-positive topK falls back to the default")
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	idx, err := New(Cosine, []Entry{
		entry("same", "first.txt", 1, 1),
		entry("other", "x.txt", -1, 0),
		entry("same", "second.txt", 1, 1),
	})
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 1}, 2)
	require.NoError(t, err)
	require.Equal(t, "first.txt", res[0].Chunk.FileName())
	require.Equal(t, "second.txt", res[1].Chunk.FileName())
	require.Equal(t, res[0].Score, res[1].Score)
}

func TestSearchZeroQueryReturnsInsertionOrder(t *testing.T) {
	idx, err := New(Cosine, []Entry{entry("A", "a", 1, 0), entry("B", "b", 0, 1)})
	require.NoError(t, err)
	res, err := idx.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, "A", res[0].Chunk.Text)
	require.Equal(t, "B", res[1].Chunk.Text)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := New(Cosine, nil)
	require.NoError(t, err)
	res, err := idx.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Empty(t, res)
	require.NotNil(t, res)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx, err := New(Cosine, []Entry{entry("A", "a", 1, 0)})
	require.NoError(t, err)
	_, err = idx.Search([]float32{1, 0, 0}, 1)
	require.Error(t, err)
}

func TestNewRejectsMixedDimensions(t *testing.T) {
	_, err := New(Cosine, []Entry{entry("A", "a", 1, 0), entry("B", "b", 1)})
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	entries := []Entry{entry("far-long", "a", 10, 0), entry("near", "b", 1, 0.1)}
	q := []float32{1, 0}

	dotIdx, _ := New(Dot, entries)
	res, err := dotIdx.Search(q, 1)
	require.NoError(t, err)
	require.Equal(t, "far-long", res[0].Chunk.Text)
	require.InDelta(t, 10.0, res[0].Score, 1e-9)

	l2Idx, _ := New(L2, entries)
	res, err = l2Idx.Search(q, 1)
	require.NoError(t, err)
	require.Equal(t, "near", res[0].Chunk.Text)
	require.InDelta(t, 1.0/1.1, res[0].Score, 1e-6)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	require.Equal(t, Cosine, m)
	m, err = ParseMetric("l2")
	require.NoError(t, err)
	require.Equal(t, L2, m)
	_, err = ParseMetric("manhattan")
	require.True(t, errors.Is(err, domain.ErrConfig))
}

func TestSnapshotRoundTrip(t *testing.T) {
	idx, err := New(Dot, []Entry{entry("A", "a", 1, 0), entry("B", "b", 0, 1)})
	require.NoError(t, err)
	snap := idx.Snapshot("hash-2")
	require.Equal(t, "hash-2", snap.Embedder)
	require.Equal(t, 2, snap.Dimension)

	restored, err := FromSnapshot(snap)
	require.NoError(t, err)
	want, _ := idx.Search([]float32{0.2, 0.8}, 2)
	got, _ := restored.Search([]float32{0.2, 0.8}, 2)
	require.Equal(t, want, got)

	snap.Dimension = 3
	_, err = FromSnapshot(snap)
	require.Error(t, err)
}
