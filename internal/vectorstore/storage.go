package vectorstore

import (
	"context"

	"docrag/internal/index"
)

// Storage persists a built index as a write-once artifact and reads it back.
type Storage interface {
	// Name describes the backend and location, for logs.
	Name() string
	// Save replaces any previously persisted index with snap.
	Save(ctx context.Context, snap *index.Snapshot) error
	// Load reads the full persisted index. It returns domain.ErrNotFound
	// when nothing was saved.
	Load(ctx context.Context) (*index.Snapshot, error)
	// Drop deletes the persisted index and reports whether one existed.
	Drop(ctx context.Context) (bool, error)
	Close() error
}
