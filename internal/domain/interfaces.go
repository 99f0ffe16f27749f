package domain

import "context"

// Metadata identifies the source document of a chunk.
type Metadata struct {
	FileName string `json:"file_name"`
}

// Document represents a single extracted file.
type Document struct {
	FileName string
	Text     string
}

// Chunk is a token-bounded part of a document used for indexing.
// All chunks of one document share the same Metadata pointer.
type Chunk struct {
	Text       string
	Metadata   *Metadata
	TokenCount int
}

// FileName returns the source file name or "Unknown" when the chunk has no metadata.
func (c Chunk) FileName() string {
	if c.Metadata == nil {
		return "Unknown"
	}
	return c.Metadata.FileName
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Tokenizer converts text to subword token ids and back.
// Encode never adds boundary tokens and Decode strips them.
type Tokenizer interface {
	Name() string
	Encode(text string) []int
	Decode(ids []int) string
}

// Embedder converts free text into a numeric vector representation.
// The same text must map to the same vector for a given Name.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a question and its ranked context.
type Generator interface {
	Name() string
	Generate(ctx context.Context, query string, results []SearchResult) (string, error)
}

// AnswerStatus tells a legitimate empty answer apart from a failed one.
type AnswerStatus string

const (
	AnswerOK        AnswerStatus = "ok"
	AnswerNoResults AnswerStatus = "no_results"
	AnswerError     AnswerStatus = "error"
)

// Answer is the result of the query surface.
type Answer struct {
	Status    AnswerStatus
	Query     string
	Text      string
	Sources   []SearchResult
	Truncated bool
	Err       error
}
