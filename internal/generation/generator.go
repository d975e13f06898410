// Package generation provides the text-generation capability used by
// the story orchestrator, plus the deterministic local fallback.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNotConfigured is returned when no provider credentials are set.
var ErrNotConfigured = errors.New("generation provider not configured")

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible completion API through
// langchaingo.
type OpenAIGenerator struct {
	llm llms.Model
}

// NewOpenAI creates a generator for the given model. baseURL may be
// empty for the default endpoint.
func NewOpenAI(model, baseURL, apiKey string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	return &OpenAIGenerator{llm: llm}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(0.8),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Disabled is a Generator that always fails, for deployments without
// provider credentials. The orchestrator's fallback then produces
// every chapter.
type Disabled struct{}

// Generate implements Generator.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
