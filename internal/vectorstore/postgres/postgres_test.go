package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/index"
)

func TestValidateTable(t *testing.T) {
	for _, name := range []string{"docrag_chunks", "_x", "a1"} {
		require.NoError(t, ValidateTable(name), name)
	}
	for _, name := range []string{"", "1abc", "Chunks", "a-b", "a;drop table x", "a b"} {
		err := ValidateTable(name)
		require.ErrorIs(t, err, domain.ErrConfig, name)
	}
}

func TestNewStorageRejectsBadTable(t *testing.T) {
	_, err := NewStorage(context.Background(), Config{DSN: "postgres://unused", Table: "bad-name"})
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestIsUndefinedTable(t *testing.T) {
	require.True(t, isUndefinedTable(fmt.Errorf("select: %w", &pq.Error{Code: codeUndefinedTable})))
	require.False(t, isUndefinedTable(&pq.Error{Code: "23505"}))
	require.False(t, isUndefinedTable(fmt.Errorf("plain")))
}

// TestRoundTrip runs against a live database with the vector extension
// when DOCRAG_TEST_POSTGRES_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("DOCRAG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCRAG_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewStorage(ctx, Config{DSN: dsn, Table: "docrag_test_chunks"})
	require.NoError(t, err)
	defer store.Close()

	idx, err := index.New(index.Cosine, []index.Entry{
		{Vector: []float32{1, 0}, Text: "alpha", Metadata: &domain.Metadata{FileName: "a.txt"}},
		{Vector: []float32{0, 1}, Text: "beta", Metadata: &domain.Metadata{FileName: "b.txt"}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, idx.Snapshot("hash-2")))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	require.Equal(t, "beta", snap.Entries[1].Text)
	require.Equal(t, "b.txt", snap.Entries[1].Metadata.FileName)

	existed, err := store.Drop(ctx)
	require.NoError(t, err)
	require.True(t, existed)
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
