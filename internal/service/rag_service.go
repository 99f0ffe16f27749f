package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/vectorstore"
)

const (
	// DefaultMaxQueryTokens is the longest query embedded as is.
	DefaultMaxQueryTokens = 512

	NoResultsText = "No relevant information found."
	ErrorText     = "An error occurred while processing your request."
)

// State is the lifecycle of the service's index.
type State int32

const (
	Unbuilt State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Building:
		return "building"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options tunes chunking, indexing and retrieval.
type Options struct {
	ChunkMaxTokens   int
	RechunkMaxTokens int
	MaxQueryTokens   int
	TopK             int
	Metric           index.Metric
	Concurrency      int
	EmbedTimeout     time.Duration
}

// BuildReport summarizes a completed build.
type BuildReport struct {
	Documents int
	Chunks    int
	Oversized []chunker.Oversize
	Persisted bool
	Duration  time.Duration
}

// QueryResult holds the ranked chunks for one query.
type QueryResult struct {
	Query     string
	Truncated bool
	Results   []domain.SearchResult
}

// RAGService owns the index lifecycle and answers queries against it.
// The index is immutable once published, so queries take no locks.
type RAGService struct {
	tokenizer domain.Tokenizer
	embedder  domain.Embedder
	store     vectorstore.Storage
	generator domain.Generator
	chunker   *chunker.TokenChunker
	builder   *index.Builder
	extractor *extract.Extractor
	opts      Options
	logger    *zap.Logger

	state atomic.Int32
	idx   atomic.Pointer[index.Index]
}

// NewRAGService wires the service. store may be nil, in which case builds
// are kept in memory only.
func NewRAGService(tok domain.Tokenizer, emb domain.Embedder, store vectorstore.Storage, gen domain.Generator, opts Options, logger *zap.Logger) *RAGService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkMaxTokens == 0 {
		opts.ChunkMaxTokens = chunker.DefaultMaxTokens
	}
	if opts.MaxQueryTokens <= 0 {
		opts.MaxQueryTokens = DefaultMaxQueryTokens
	}
	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	if opts.Metric == "" {
		opts.Metric = index.Cosine
	}
	builderOpts := []index.BuilderOption{index.WithEmbedTimeout(opts.EmbedTimeout)}
	if opts.Concurrency > 0 {
		builderOpts = append(builderOpts, index.WithConcurrency(opts.Concurrency))
	}
	return &RAGService{
		tokenizer: tok,
		embedder:  emb,
		store:     store,
		generator: gen,
		chunker:   chunker.NewTokenChunker(tok, logger),
		builder:   index.NewBuilder(emb, opts.Metric, logger, builderOpts...),
		extractor: extract.NewExtractor(logger),
		opts:      opts,
		logger:    logger,
	}
}

// State reports the current lifecycle state.
func (s *RAGService) State() State { return State(s.state.Load()) }

// Index returns the published index, or nil before the first build or load.
func (s *RAGService) Index() *index.Index { return s.idx.Load() }

// IngestPaths extracts the files matched by patterns and builds from them.
func (s *RAGService) IngestPaths(ctx context.Context, patterns []string) (*BuildReport, error) {
	docs, err := s.extractor.Paths(patterns)
	if err != nil {
		return nil, err
	}
	return s.Build(ctx, docs)
}

// Build chunks docs, embeds every chunk and publishes the new index. A
// failed build leaves the previously published index in place.
func (s *RAGService) Build(ctx context.Context, docs []domain.Document) (*BuildReport, error) {
	if err := chunker.ValidateMaxTokens(s.opts.ChunkMaxTokens); err != nil {
		return nil, err
	}
	if s.opts.RechunkMaxTokens != 0 {
		if err := chunker.ValidateMaxTokens(s.opts.RechunkMaxTokens); err != nil {
			return nil, err
		}
	}
	prev, err := s.begin()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	report, idx, err := s.build(ctx, docs)
	if err != nil {
		s.state.Store(int32(prev))
		return nil, err
	}
	report.Duration = time.Since(start)
	s.publish(idx)
	s.logger.Info("index ready",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("oversized", len(report.Oversized)),
		zap.Bool("persisted", report.Persisted),
		zap.Duration("took", report.Duration),
	)
	return report, nil
}

func (s *RAGService) build(ctx context.Context, docs []domain.Document) (*BuildReport, *index.Index, error) {
	chunked, oversized, err := s.chunker.ChunkDocuments(docs, s.opts.ChunkMaxTokens)
	if err != nil {
		return nil, nil, err
	}
	var chunks []domain.Chunk
	if s.opts.RechunkMaxTokens > 0 {
		var more []chunker.Oversize
		chunks, more, err = s.chunker.Process(chunked, s.opts.RechunkMaxTokens)
		if err != nil {
			return nil, nil, err
		}
		oversized = append(oversized, more...)
	} else {
		chunks = chunker.Flatten(chunked)
	}
	if len(chunks) == 0 {
		s.logger.Warn("empty corpus, building an empty index", zap.Int("documents", len(docs)))
	}

	idx, err := s.builder.Build(ctx, chunks)
	if err != nil {
		return nil, nil, err
	}
	report := &BuildReport{Documents: len(docs), Chunks: idx.Len(), Oversized: oversized}
	if s.store != nil {
		if err := s.store.Save(ctx, idx.Snapshot(s.embedder.Name())); err != nil {
			return nil, nil, fmt.Errorf("persist index to %s: %w", s.store.Name(), err)
		}
		report.Persisted = true
	}
	return report, idx, nil
}

// Load publishes the index persisted in the store.
func (s *RAGService) Load(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("%w: no store configured", domain.ErrConfig)
	}
	prev, err := s.begin()
	if err != nil {
		return err
	}
	idx, err := s.load(ctx)
	if err != nil {
		s.state.Store(int32(prev))
		return err
	}
	s.publish(idx)
	s.logger.Info("index loaded", zap.String("store", s.store.Name()), zap.Int("chunks", idx.Len()))
	return nil
}

func (s *RAGService) load(ctx context.Context) (*index.Index, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index from %s: %w", s.store.Name(), err)
	}
	if snap.Embedder != "" && snap.Embedder != s.embedder.Name() {
		s.logger.Warn("index was built with a different embedder",
			zap.String("built_with", snap.Embedder),
			zap.String("configured", s.embedder.Name()),
		)
	}
	return index.FromSnapshot(snap)
}

func (s *RAGService) begin() (State, error) {
	for {
		cur := State(s.state.Load())
		if cur == Building {
			return cur, domain.ErrBuildInProgress
		}
		if s.state.CompareAndSwap(int32(cur), int32(Building)) {
			return cur, nil
		}
	}
}

func (s *RAGService) publish(idx *index.Index) {
	s.idx.Store(idx)
	s.state.Store(int32(Ready))
}

// Query embeds text and returns the topK most similar chunks, best first.
// topK <= 0 uses the configured default.
func (s *RAGService) Query(ctx context.Context, text string, topK int) (*QueryResult, error) {
	idx := s.idx.Load()
	if s.State() != Ready || idx == nil {
		return nil, domain.ErrIndexNotReady
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	q, truncated := s.truncate(text)

	embedCtx := ctx
	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(embedCtx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrExternalService, err)
	}
	results, err := idx.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExternalService, s.embedder.Name(), err)
	}
	for i, r := range results {
		s.logger.Debug("retrieved",
			zap.Int("rank", i+1),
			zap.Float64("score", r.Score),
			zap.String("file_name", r.Chunk.FileName()),
		)
	}
	return &QueryResult{Query: q, Truncated: truncated, Results: results}, nil
}

// truncate cuts text to its first MaxQueryTokens-2 tokens when it is longer
// than MaxQueryTokens.
func (s *RAGService) truncate(text string) (string, bool) {
	ids := s.tokenizer.Encode(text)
	if len(ids) <= s.opts.MaxQueryTokens {
		return text, false
	}
	keep := s.opts.MaxQueryTokens - chunker.ReservedTokens
	s.logger.Warn("query too long, truncating",
		zap.Int("tokens", len(ids)),
		zap.Int("kept", keep),
	)
	return s.tokenizer.Decode(ids[:keep]), true
}

// Answer retrieves context for text and asks the generator for an answer.
// Failures are reported through the returned status, never as a panic or
// a bare error.
func (s *RAGService) Answer(ctx context.Context, text string) domain.Answer {
	res, err := s.Query(ctx, text, 0)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		return domain.Answer{Status: domain.AnswerError, Query: text, Text: ErrorText, Err: err}
	}
	ans := domain.Answer{Query: res.Query, Truncated: res.Truncated, Sources: res.Results}
	if len(res.Results) == 0 {
		ans.Status = domain.AnswerNoResults
		ans.Text = NoResultsText
		return ans
	}
	out, err := s.generator.Generate(ctx, res.Query, res.Results)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrExternalService, s.generator.Name(), err)
		}
		s.logger.Error("generation failed", zap.Error(err))
		ans.Status = domain.AnswerError
		ans.Text = ErrorText
		ans.Err = err
		return ans
	}
	ans.Status = domain.AnswerOK
	ans.Text = out
	return ans
}

// Close releases the store.
func (s *RAGService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
