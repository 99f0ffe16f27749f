package gemini

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const defaultModel = "text-embedding-004"

// Config configures the Gemini embeddings client.
type Config struct {
	APIKeyEnv string
	Model     string
	TaskType  string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Client embeds text through the Gemini API.
type Client struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewClient creates a Gemini embeddings client. The API key is read from the
// environment variable named in cfg.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: cfg.Model, taskType: cfg.TaskType}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "gemini:" + c.model }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if c.taskType != "" {
		config = &genai.EmbedContentConfig{TaskType: c.taskType}
	}
	resp, err := c.client.Models.EmbedContent(
		ctx,
		c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}
