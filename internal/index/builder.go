package index

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docrag/internal/domain"
)

// DefaultConcurrency bounds parallel embedding calls during a build.
const DefaultConcurrency = 4

// Builder embeds chunks and assembles them into a fresh Index.
type Builder struct {
	embedder    domain.Embedder
	metric      Metric
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithConcurrency sets the number of concurrent embedding calls.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithEmbedTimeout bounds every single embedding call.
func WithEmbedTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) { b.timeout = d }
}

// NewBuilder creates a Builder that embeds with embedder and ranks with metric.
func NewBuilder(embedder domain.Embedder, metric Metric, logger *zap.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{embedder: embedder, metric: metric, concurrency: DefaultConcurrency, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds every chunk and returns a complete index. If any chunk fails
// to embed the whole build fails and no index is returned.
func (b *Builder) Build(ctx context.Context, chunks []domain.Chunk) (*Index, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := b.embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("%w: embed chunk %d (%s): %w", domain.ErrExternalService, i, chunks[i].FileName(), err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	entries := make([]Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = Entry{Vector: vectors[i], Text: ch.Text, Metadata: ch.Metadata}
	}
	idx, err := New(b.metric, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %s returned inconsistent vectors: %w", domain.ErrExternalService, b.embedder.Name(), err)
	}
	b.logger.Info("indexed chunks", zap.Int("chunks", idx.Len()), zap.Int("dimension", idx.Dimension()), zap.String("metric", string(b.metric)))
	return idx, nil
}

func (b *Builder) embed(ctx context.Context, text string) ([]float32, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.embedder.Embed(ctx, text)
}
