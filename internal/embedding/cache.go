package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"docrag/internal/domain"
)

// WrapLRU returns an embedder that memoizes e in an expiring LRU cache keyed
// by embedder name and text hash. A non-positive size or ttl returns e as is.
func WrapLRU(e domain.Embedder, size int, ttl time.Duration, logger *zap.Logger) domain.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lruEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: logger,
	}
}

type lruEmbedder struct {
	next   domain.Embedder
	cache  *expirable.LRU[string, []float32]
	logger *zap.Logger
}

func (l *lruEmbedder) Name() string { return l.next.Name() }

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(l.next.Name(), text)
	if cached, ok := l.cache.Get(key); ok {
		l.logger.Debug("embedding cache hit", zap.String("embedder", l.next.Name()))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func cacheKey(name, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + name + ":" + hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
