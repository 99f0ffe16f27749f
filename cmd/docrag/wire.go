package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/embedding/gemini"
	"docrag/internal/embedding/hash"
	"docrag/internal/embedding/openai"
	"docrag/internal/generator"
	gengemini "docrag/internal/generator/gemini"
	genopenai "docrag/internal/generator/openai"
	"docrag/internal/index"
	"docrag/internal/service"
	"docrag/internal/tokenizer"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/bolt"
	"docrag/internal/vectorstore/postgres"
	"docrag/internal/vectorstore/qdrant"
)

func newTokenizer(cfg *config.AppConfig) (domain.Tokenizer, error) {
	switch cfg.Tokenizer.Type {
	case "word", "":
		return tokenizer.NewWordTokenizer(), nil
	case "tiktoken":
		return tokenizer.NewBPETokenizer(cfg.Tokenizer.Encoding, cfg.Tokenizer.CacheDir)
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer: %s", domain.ErrConfig, cfg.Tokenizer.Type)
	}
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hash", "":
		dim := hash.DefaultDimension
		if cfg.Embedder.Hash != nil && cfg.Embedder.Hash.Dimension > 0 {
			dim = cfg.Embedder.Hash.Dimension
		}
		emb = hash.NewEmbedder(dim)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfig)
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.OpenAI.Model,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Embedder.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			return nil, fmt.Errorf("%w: gemini embedder config missing", domain.ErrConfig)
		}
		client, err := gemini.NewClient(ctx, gemini.Config{
			BaseURL:   cfg.Embedder.Gemini.BaseURL,
			APIKeyEnv: cfg.Embedder.Gemini.APIKeyEnv,
			Model:     cfg.Embedder.Gemini.Model,
			TaskType:  cfg.Embedder.Gemini.TaskType,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfig, cfg.Embedder.Type)
	}
	ttl := time.Duration(cfg.Embedder.Cache.TTLSecs) * time.Second
	return embedding.WrapLRU(emb, cfg.Embedder.Cache.Size, ttl, logger), nil
}

func newStore(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.Store.Type {
	case "none":
		return nil, nil
	case "bolt", "":
		path := "index.db"
		if cfg.Store.Bolt != nil && cfg.Store.Bolt.Path != "" {
			path = cfg.Store.Bolt.Path
		}
		return bolt.NewStorage(path), nil
	case "qdrant":
		if cfg.Store.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrConfig)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Store.Qdrant.URL,
			APIKey:     cfg.Store.Qdrant.APIKey,
			Collection: cfg.Store.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Store.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "postgres":
		if cfg.Store.Postgres == nil {
			return nil, fmt.Errorf("%w: postgres config missing", domain.ErrConfig)
		}
		dsn := cfg.Store.Postgres.DSN
		if cfg.Store.Postgres.DSNEnv != "" {
			dsn = os.Getenv(cfg.Store.Postgres.DSNEnv)
		}
		return postgres.NewStorage(ctx, postgres.Config{DSN: dsn, Table: cfg.Store.Postgres.Table})
	default:
		return nil, fmt.Errorf("%w: unknown store: %s", domain.ErrConfig, cfg.Store.Type)
	}
}

func newGenerator(ctx context.Context, cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "extractive", "":
		return generator.NewExtractive(cfg.Generator.MaxSentences), nil
	case "openai":
		if cfg.Generator.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai generator config missing", domain.ErrConfig)
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.Generator.OpenAI.BaseURL,
			APIKeyEnv:   cfg.Generator.OpenAI.APIKeyEnv,
			Model:       cfg.Generator.OpenAI.Model,
			Timeout:     time.Duration(cfg.Generator.OpenAI.TimeoutSecs) * time.Second,
			MaxTokens:   cfg.Generator.OpenAI.MaxTokens,
			Temperature: cfg.Generator.OpenAI.Temperature,
		})
	case "gemini":
		if cfg.Generator.Gemini == nil {
			return nil, fmt.Errorf("%w: gemini generator config missing", domain.ErrConfig)
		}
		return gengemini.NewClient(ctx, gengemini.Config{
			BaseURL:   cfg.Generator.Gemini.BaseURL,
			APIKeyEnv: cfg.Generator.Gemini.APIKeyEnv,
			Model:     cfg.Generator.Gemini.Model,
		})
	default:
		return nil, fmt.Errorf("%w: unknown generator: %s", domain.ErrConfig, cfg.Generator.Type)
	}
}

// newService assembles the service from configuration. The caller closes it.
// Everything that can fail on configuration alone runs before the store is
// opened, so an error never leaves a database connection behind.
func newService(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*service.RAGService, error) {
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	tok, err := newTokenizer(cfg)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := service.Options{
		ChunkMaxTokens:   cfg.Chunker.MaxTokens,
		RechunkMaxTokens: cfg.Index.RechunkMaxTokens,
		MaxQueryTokens:   cfg.Index.MaxQueryTokens,
		TopK:             cfg.Index.TopK,
		Metric:           metric,
		Concurrency:      cfg.Embedder.Concurrency,
		EmbedTimeout:     time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	}
	logger.Info("components assembled",
		zap.String("tokenizer", tok.Name()),
		zap.String("embedder", emb.Name()),
		zap.String("generator", gen.Name()),
		zap.String("store", cfg.Store.Type),
	)
	return service.NewRAGService(tok, emb, store, gen, opts, logger), nil
}

