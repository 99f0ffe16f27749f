package generator

import (
	"context"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/summarizer"
)

// Extractive answers by picking the retrieved sentences most related to the
// query. It needs no model and never fails.
type Extractive struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = summarizer.DefaultMaxSentences
	}
	return &Extractive{summarizer: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

func (g *Extractive) Name() string { return "extractive" }

func (g *Extractive) Generate(ctx context.Context, query string, results []domain.SearchResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
	}
	answer := g.summarizer.SummarizeFor(query, strings.Join(texts, "\n"), g.maxSentences)
	return answer + "\n\nSources: " + strings.Join(Sources(results), ", "), nil
}
