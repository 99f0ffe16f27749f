package chunker

import (
	"go.uber.org/zap"

	"docrag/internal/domain"
)

// ChunkedDocument is a document together with the chunks it produced at
// ingestion time.
type ChunkedDocument struct {
	Document domain.Document
	Chunks   []domain.Chunk
}

// ChunkDocuments runs the ingestion pass: each document is chunked with
// maxTokens and tagged with its file name.
func (c *TokenChunker) ChunkDocuments(docs []domain.Document, maxTokens int) ([]ChunkedDocument, []Oversize, error) {
	if err := ValidateMaxTokens(maxTokens); err != nil {
		return nil, nil, err
	}
	out := make([]ChunkedDocument, 0, len(docs))
	var oversized []Oversize
	for _, d := range docs {
		meta := &domain.Metadata{FileName: d.FileName}
		chunks, over, err := c.Chunk(d.Text, meta, maxTokens)
		if err != nil {
			return nil, nil, err
		}
		oversized = append(oversized, over...)
		out = append(out, ChunkedDocument{Document: d, Chunks: chunks})
	}
	return out, oversized, nil
}

// Process runs the indexing pass: every chunk already produced is chunked
// again with maxTokens and the result is flattened in document order, then
// chunk order. When maxTokens is not smaller than the ingestion limit each
// chunk maps to exactly one chunk.
func (c *TokenChunker) Process(docs []ChunkedDocument, maxTokens int) ([]domain.Chunk, []Oversize, error) {
	if err := ValidateMaxTokens(maxTokens); err != nil {
		return nil, nil, err
	}
	var out []domain.Chunk
	var oversized []Oversize
	for _, d := range docs {
		for _, ch := range d.Chunks {
			smaller, over, err := c.Chunk(ch.Text, ch.Metadata, maxTokens)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, smaller...)
			oversized = append(oversized, over...)
		}
	}
	c.logger.Info("processed chunks across all documents", zap.Int("documents", len(docs)), zap.Int("chunks", len(out)))
	return out, oversized, nil
}

// Flatten concatenates the ingestion chunks without re-chunking.
func Flatten(docs []ChunkedDocument) []domain.Chunk {
	var out []domain.Chunk
	for _, d := range docs {
		out = append(out, d.Chunks...)
	}
	return out
}
