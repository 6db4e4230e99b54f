package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiCompleter calls Google Gemini. Models are tried in order until one answers.
type GeminiCompleter struct {
	client *genai.Client
	models []string
	logger *slog.Logger
}

// NewGeminiCompleter creates a Gemini API client
func NewGeminiCompleter(ctx context.Context, apiKey string, models []string, logger *slog.Logger) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one gemini model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiCompleter{
		client: client,
		models: models,
		logger: logger.With("component", "gemini"),
	}, nil
}

func (g *GeminiCompleter) Name() string {
	return "gemini"
}

func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	var errs []error
	for _, model := range g.models {
		resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			g.logger.Warn("model failed, trying next", "model", model, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", model, err))
			continue
		}

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			errs = append(errs, fmt.Errorf("%s: empty response", model))
			continue
		}
		return text, nil
	}

	return "", errors.Join(errs...)
}
