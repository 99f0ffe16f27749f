// Package generator turns retrieved chunks into an answer.
package generator

import (
	"strings"

	"docrag/internal/domain"
)

// BuildPrompt formats the retrieved chunks as source-tagged context followed
// by the question.
func BuildPrompt(query string, results []domain.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Use the context below to answer the question accurately:\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(Context(results))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nProvide a concise and precise answer, including the source document name if relevant.")
	return sb.String()
}

// Context renders results as "Source: <file>\n<text>" blocks, one per result.
func Context(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, "Source: "+r.Chunk.FileName()+"\n"+r.Chunk.Text)
	}
	return strings.Join(parts, "\n")
}

// Sources lists the distinct file names of results in rank order.
func Sources(results []domain.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, r := range results {
		name := r.Chunk.FileName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
