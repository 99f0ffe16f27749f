package index

import (
	"fmt"
	"math"
	"sort"

	"docrag/internal/domain"
)

// DefaultTopK is the number of results returned when topK is not positive.
const DefaultTopK = 5

// Metric is the similarity function used to rank entries.
type Metric string

const (
	Cosine Metric = "cosine"
	Dot    Metric = "dot"
	L2     Metric = "l2"
)

// ParseMetric validates a configured metric name. Empty selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "":
		return Cosine, nil
	case Cosine, Dot, L2:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", domain.ErrConfig, s)
	}
}

// Entry is one indexed chunk with its embedding.
type Entry struct {
	Vector   []float32
	Text     string
	Metadata *domain.Metadata
}

// Index is an immutable, exact nearest-neighbour index over a fixed set of
// entries. It is safe for concurrent searches.
type Index struct {
	metric    Metric
	dimension int
	entries   []Entry
	norms     []float64
}

// New creates an index over entries. All vectors must share one dimension.
func New(metric Metric, entries []Entry) (*Index, error) {
	if metric == "" {
		metric = Cosine
	}
	idx := &Index{metric: metric, entries: entries}
	if len(entries) == 0 {
		return idx, nil
	}
	idx.dimension = len(entries[0].Vector)
	if idx.dimension == 0 {
		return nil, fmt.Errorf("entry 0 has an empty vector")
	}
	idx.norms = make([]float64, len(entries))
	for i, e := range entries {
		if len(e.Vector) != idx.dimension {
			return nil, fmt.Errorf("entry %d: vector dimension %d, want %d", i, len(e.Vector), idx.dimension)
		}
		idx.norms[i] = norm(e.Vector)
	}
	return idx, nil
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Dimension returns the vector dimension, or 0 for an empty index.
func (ix *Index) Dimension() int { return ix.dimension }

// Metric returns the similarity metric.
func (ix *Index) Metric() Metric { return ix.metric }

// Entries returns the entries in insertion order. Callers must not modify them.
func (ix *Index) Entries() []Entry { return ix.entries }

// Search returns the topK entries most similar to vector, best first. Equal
// scores keep insertion order. An empty index yields no results.
func (ix *Index) Search(vector []float32, topK int) ([]domain.SearchResult, error) {
	if len(ix.entries) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(vector), ix.dimension)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	qnorm := norm(vector)
	scores := make([]float64, len(ix.entries))
	for i := range ix.entries {
		scores[i] = ix.score(i, vector, qnorm)
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	if topK > len(order) {
		topK = len(order)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, i := range order[:topK] {
		e := ix.entries[i]
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{Text: e.Text, Metadata: e.Metadata},
			Score: scores[i],
		})
	}
	return results, nil
}

func (ix *Index) score(i int, q []float32, qnorm float64) float64 {
	v := ix.entries[i].Vector
	switch ix.metric {
	case Dot:
		return dot(v, q)
	case L2:
		return 1.0 / (1.0 + euclidean(v, q))
	default:
		if qnorm == 0 || ix.norms[i] == 0 {
			return 0
		}
		return dot(v, q) / (qnorm * ix.norms[i])
	}
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func euclidean(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
