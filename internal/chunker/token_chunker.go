package chunker

import (
	"fmt"

	"go.uber.org/zap"

	"docrag/internal/domain"
)

const (
	// DefaultMaxTokens is the chunk limit used when none is configured.
	DefaultMaxTokens = 256
	// ReservedTokens are left free in every window for model boundary markers.
	ReservedTokens = 2
)

// Oversize flags a chunk whose decoded text re-encodes to more tokens than
// the limit it was cut for. It is a diagnostic; the chunk is still kept.
type Oversize struct {
	FileName string
	Index    int
	Tokens   int
	Limit    int
}

// TokenChunker splits text into consecutive, non-overlapping token windows.
type TokenChunker struct {
	tokenizer domain.Tokenizer
	logger    *zap.Logger
}

// NewTokenChunker creates a chunker measuring length with tokenizer.
func NewTokenChunker(tokenizer domain.Tokenizer, logger *zap.Logger) *TokenChunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenChunker{tokenizer: tokenizer, logger: logger}
}

// ValidateMaxTokens reports a config error for limits that leave no room after
// the reserved boundary tokens.
func ValidateMaxTokens(maxTokens int) error {
	if maxTokens <= ReservedTokens {
		return fmt.Errorf("%w: max_tokens must be greater than %d, got %d", domain.ErrConfig, ReservedTokens, maxTokens)
	}
	return nil
}

// Chunk encodes text once and cuts it into windows of maxTokens-2 tokens.
// Every chunk carries meta unchanged.
func (c *TokenChunker) Chunk(text string, meta *domain.Metadata, maxTokens int) ([]domain.Chunk, []Oversize, error) {
	if err := ValidateMaxTokens(maxTokens); err != nil {
		return nil, nil, err
	}
	ids := c.tokenizer.Encode(text)
	windows := Windows(ids, maxTokens-ReservedTokens)
	if len(windows) == 0 {
		return nil, nil, nil
	}
	fileName := ""
	if meta != nil {
		fileName = meta.FileName
	}
	chunks := make([]domain.Chunk, 0, len(windows))
	var oversized []Oversize
	for i, w := range windows {
		chunkText := c.tokenizer.Decode(w)
		chunks = append(chunks, domain.Chunk{Text: chunkText, Metadata: meta, TokenCount: len(w)})

		n := len(c.tokenizer.Encode(chunkText))
		if n > maxTokens {
			oversized = append(oversized, Oversize{FileName: fileName, Index: i, Tokens: n, Limit: maxTokens})
			c.logger.Warn("chunk exceeds max token limit",
				zap.String("file_name", fileName),
				zap.Int("chunk", i),
				zap.Int("tokens", n),
				zap.Int("max_tokens", maxTokens),
			)
			continue
		}
		c.logger.Debug("chunk within limit",
			zap.String("file_name", fileName),
			zap.Int("chunk", i),
			zap.Int("tokens", n),
		)
	}
	return chunks, oversized, nil
}

// Windows partitions ids into consecutive slices of length size, the last one
// possibly shorter. The windows share the backing array of ids.
func Windows(ids []int, size int) [][]int {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	out := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end:end])
	}
	return out
}
