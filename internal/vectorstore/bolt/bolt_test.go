package bolt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/index"
)

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.New(index.Cosine, []index.Entry{
		{Vector: []float32{1, 0, 0.5}, Text: "first chunk", Metadata: &domain.Metadata{FileName: "a.txt"}},
		{Vector: []float32{0, 1, -0.25}, Text: "second chunk", Metadata: &domain.Metadata{FileName: "b.pdf"}},
		{Vector: []float32{0.3, 0.3, 0.3}, Text: "third chunk", Metadata: &domain.Metadata{FileName: "a.txt"}},
	})
	require.NoError(t, err)
	return idx
}

func TestSaveLoadSearchesIdentically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	store := NewStorage(path)
	ctx := context.Background()
	idx := buildIndex(t)

	require.NoError(t, store.Save(ctx, idx.Snapshot("hash-3")))
	_, err := os.Stat(path + ".tmp")
	require.True(t, errors.Is(err, os.ErrNotExist))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "hash-3", snap.Embedder)
	require.Equal(t, index.Cosine, snap.Metric)
	require.Len(t, snap.Entries, 3)

	restored, err := index.FromSnapshot(snap)
	require.NoError(t, err)
	q := []float32{0.5, 0.2, 0.1}
	want, err := idx.Search(q, 3)
	require.NoError(t, err)
	got, err := restored.Search(q, 3)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveReplacesPreviousIndex(t *testing.T) {
	store := NewStorage(filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, buildIndex(t).Snapshot("hash-3")))

	empty, err := index.New(index.Dot, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, empty.Snapshot("hash-3")))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Entries)
	require.Equal(t, index.Dot, snap.Metric)
}

func TestLoadMissing(t *testing.T) {
	store := NewStorage(filepath.Join(t.TempDir(), "none.db"))
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDrop(t *testing.T) {
	store := NewStorage(filepath.Join(t.TempDir(), "index.db"))
	ctx := context.Background()

	existed, err := store.Drop(ctx)
	require.NoError(t, err)
	require.False(t, existed)

	require.NoError(t, store.Save(ctx, buildIndex(t).Snapshot("hash-3")))
	existed, err = store.Drop(ctx)
	require.NoError(t, err)
	require.True(t, existed)

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.4028235e38}
	require.Equal(t, v, decodeVector(encodeVector(v)))
}
