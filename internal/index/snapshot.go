package index

import (
	"fmt"
	"time"
)

// Snapshot is the persisted form of an Index.
type Snapshot struct {
	Metric    Metric
	Dimension int
	Embedder  string
	BuiltAt   time.Time
	Entries   []Entry
}

// Snapshot captures ix for persistence, recording which embedder built it.
func (ix *Index) Snapshot(embedder string) *Snapshot {
	return &Snapshot{
		Metric:    ix.metric,
		Dimension: ix.dimension,
		Embedder:  embedder,
		BuiltAt:   time.Now().UTC(),
		Entries:   ix.entries,
	}
}

// FromSnapshot restores an Index from a loaded snapshot.
func FromSnapshot(s *Snapshot) (*Index, error) {
	idx, err := New(s.Metric, s.Entries)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	if s.Dimension != 0 && idx.Dimension() != s.Dimension {
		return nil, fmt.Errorf("restore snapshot: dimension %d, manifest says %d", idx.Dimension(), s.Dimension)
	}
	return idx, nil
}
