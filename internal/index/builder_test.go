package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docrag/internal/domain"
)

// letterEmbedder maps text to counts of the letters a, b and c.
type letterEmbedder struct {
	calls  atomic.Int32
	failOn string
	delay  time.Duration
}

func (e *letterEmbedder) Name() string { return "letters" }

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.failOn != "" && text == e.failOn {
		return nil, errors.New("provider unavailable")
	}
	return []float32{
		float32(strings.Count(text, "a")),
		float32(strings.Count(text, "b")),
		float32(strings.Count(text, "c")),
	}, nil
}

func chunksOf(texts ...string) []domain.Chunk {
	meta := &domain.Metadata{FileName: "doc.txt"}
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, Metadata: meta}
	}
	return out
}

func TestBuildEmbedsEveryChunkInOrder(t *testing.T) {
	emb := &letterEmbedder{}
	b := NewBuilder(emb, Cosine, zaptest.NewLogger(t), WithConcurrency(3))
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s%s", strings.Repeat("a", i+1), strings.Repeat("b", 20-i))
	}

	idx, err := b.Build(context.Background(), chunksOf(texts...))
	require.NoError(t, err)
	require.Equal(t, 20, idx.Len())
	require.Equal(t, 3, idx.Dimension())
	require.Equal(t, int32(20), emb.calls.Load())
	for i, e := range idx.Entries() {
		require.Equal(t, texts[i], e.Text)
		require.Equal(t, float32(i+1), e.Vector[0])
	}
}

func TestBuildFailsWholeBuildOnEmbedError(t *testing.T) {
	b := NewBuilder(&letterEmbedder{failOn: "bbb"}, Cosine, nil)
	idx, err := b.Build(context.Background(), chunksOf("aaa", "bbb", "ccc"))
	require.Nil(t, idx)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrExternalService))
	require.Contains(t, err.Error(), "chunk 1")
}

func TestBuildEmbedTimeout(t *testing.T) {
	b := NewBuilder(&letterEmbedder{delay: time.Second}, Cosine, nil, WithEmbedTimeout(10*time.Millisecond))
	_, err := b.Build(context.Background(), chunksOf("aaa"))
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.True(t, errors.Is(err, domain.ErrExternalService))
}

func TestBuildEmptyCorpus(t *testing.T) {
	emb := &letterEmbedder{}
	idx, err := NewBuilder(emb, Cosine, nil).Build(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, idx.Len())
	require.Equal(t, int32(0), emb.calls.Load())

	res, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, res)
}
