package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiConfig struct {
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// GeminiCompleter generates SQL through the Gemini API.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash-latest"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimSpace(cfg.BaseURL),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiCompleter{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (c *GeminiCompleter) Model() string {
	return c.model
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	temperature := c.temperature
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}
