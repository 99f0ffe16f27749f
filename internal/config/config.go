package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docrag/internal/domain"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TokenizerConfig selects the tokenizer used for chunking and query truncation.
type TokenizerConfig struct {
	Type     string `yaml:"type"`
	Encoding string `yaml:"encoding,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

// HashEmbedderConfig configures the offline hashing embedder.
type HashEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	TaskType  string `yaml:"task_type"`
}

// CacheConfig configures the in-process embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size    int `yaml:"size"`
	TTLSecs int `yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Concurrency int                   `yaml:"concurrency"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	Cache       CacheConfig           `yaml:"cache"`
	Hash        *HashEmbedderConfig   `yaml:"hash,omitempty"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini      *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// IndexConfig configures the vector index and retrieval.
type IndexConfig struct {
	Metric           string `yaml:"metric"`
	TopK             int    `yaml:"top_k"`
	MaxQueryTokens   int    `yaml:"max_query_tokens"`
	RechunkMaxTokens int    `yaml:"rechunk_max_tokens"`
}

// StoreConfig selects where the built index is persisted.
type StoreConfig struct {
	Type     string          `yaml:"type"`
	Bolt     *BoltConfig     `yaml:"bolt,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// BoltConfig points at the bbolt index file.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PostgresConfig contains connection details for a pgvector-enabled database.
type PostgresConfig struct {
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// OpenAIGeneratorConfig configures the OpenAI-compatible chat generator.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// GeminiGeneratorConfig configures the Gemini generator.
type GeminiGeneratorConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string                 `yaml:"type"`
	MaxSentences int                    `yaml:"max_sentences"`
	OpenAI       *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Gemini       *GeminiGeneratorConfig `yaml:"gemini,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log       LogConfig       `yaml:"log"`
	DataDir   string          `yaml:"data_dir"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Store     StoreConfig     `yaml:"store"`
	Generator GeneratorConfig `yaml:"generator"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfig, path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the values a build or query cannot recover from.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.MaxTokens <= 2 {
		errs = append(errs, fmt.Errorf("chunker.max_tokens must be greater than 2, got %d", c.Chunker.MaxTokens))
	}
	if r := c.Index.RechunkMaxTokens; r != 0 && r <= 2 {
		errs = append(errs, fmt.Errorf("index.rechunk_max_tokens must be 0 or greater than 2, got %d", r))
	}
	if c.Index.MaxQueryTokens <= 2 {
		errs = append(errs, fmt.Errorf("index.max_query_tokens must be greater than 2, got %d", c.Index.MaxQueryTokens))
	}
	switch c.Index.Metric {
	case "cosine", "dot", "l2":
	default:
		errs = append(errs, fmt.Errorf("index.metric: unknown metric %q", c.Index.Metric))
	}
	switch c.Tokenizer.Type {
	case "word", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("tokenizer.type: unknown tokenizer %q", c.Tokenizer.Type))
	}
	switch c.Embedder.Type {
	case "hash":
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("embedder.openai section missing"))
		}
	case "gemini":
		if c.Embedder.Gemini == nil {
			errs = append(errs, errors.New("embedder.gemini section missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedder.type: unknown embedder %q", c.Embedder.Type))
	}
	switch c.Store.Type {
	case "none", "bolt":
	case "qdrant":
		if c.Store.Qdrant == nil || c.Store.Qdrant.URL == "" {
			errs = append(errs, errors.New("store.qdrant.url missing"))
		}
	case "postgres":
		if c.Store.Postgres == nil || (c.Store.Postgres.DSN == "" && c.Store.Postgres.DSNEnv == "") {
			errs = append(errs, errors.New("store.postgres.dsn or dsn_env missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type: unknown store %q", c.Store.Type))
	}
	switch c.Generator.Type {
	case "extractive":
	case "openai":
		if c.Generator.OpenAI == nil {
			errs = append(errs, errors.New("generator.openai section missing"))
		}
	case "gemini":
		if c.Generator.Gemini == nil {
			errs = append(errs, errors.New("generator.gemini section missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.type: unknown generator %q", c.Generator.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfig, errors.Join(errs...))
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Log:       LogConfig{Level: "info", Format: "console"},
		DataDir:   "data",
		Tokenizer: TokenizerConfig{Type: "word"},
		Chunker:   ChunkerConfig{MaxTokens: 256},
		Embedder:  EmbedderConfig{Type: "hash", Hash: &HashEmbedderConfig{Dimension: 384}},
		Index:     IndexConfig{Metric: "cosine", TopK: 5, MaxQueryTokens: 512},
		Store:     StoreConfig{Type: "bolt"},
		Generator: GeneratorConfig{Type: "extractive", MaxSentences: 3},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Tokenizer.Type == "" {
		cfg.Tokenizer.Type = "word"
	}
	if cfg.Tokenizer.Type == "tiktoken" && cfg.Tokenizer.Encoding == "" {
		cfg.Tokenizer.Encoding = "cl100k_base"
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 256
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 5
	}
	if cfg.Index.MaxQueryTokens == 0 {
		cfg.Index.MaxQueryTokens = 512
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hash"
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.Type == "hash" {
		if cfg.Embedder.Hash == nil {
			cfg.Embedder.Hash = &HashEmbedderConfig{}
		}
		if cfg.Embedder.Hash.Dimension == 0 {
			cfg.Embedder.Hash.Dimension = 384
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "gemini" && cfg.Embedder.Gemini != nil {
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "bolt"
	}
	if cfg.Store.Type == "bolt" {
		if cfg.Store.Bolt == nil {
			cfg.Store.Bolt = &BoltConfig{}
		}
		if cfg.Store.Bolt.Path == "" {
			cfg.Store.Bolt.Path = filepath.Join(cfg.DataDir, "index.db")
		}
	}
	if cfg.Store.Type == "qdrant" && cfg.Store.Qdrant != nil {
		if cfg.Store.Qdrant.Collection == "" {
			cfg.Store.Qdrant.Collection = "docrag"
		}
		if cfg.Store.Qdrant.TimeoutSecs == 0 {
			cfg.Store.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Store.Type == "postgres" && cfg.Store.Postgres != nil && cfg.Store.Postgres.Table == "" {
		cfg.Store.Postgres.Table = "docrag_chunks"
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 3
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.OpenAI != nil {
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 60
		}
	}
	if cfg.Generator.Type == "gemini" && cfg.Generator.Gemini != nil && cfg.Generator.Gemini.APIKeyEnv == "" {
		cfg.Generator.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
}
