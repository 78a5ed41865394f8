package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the direct Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional endpoint override
}

// GeminiClient calls Models.GenerateContent through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	// OpenRouter-style ids ("google/gemini-2.0-flash-001") name the same model.
	model := strings.TrimPrefix(cfg.Model, "google/")
	if model == "" {
		model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Name identifies the provider in logs.
func (c *GeminiClient) Name() string { return "gemini:" + c.model }

// Complete sends prompt as a single user turn.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("malformed response: no candidates")
	}
	return result.Text(), nil
}
