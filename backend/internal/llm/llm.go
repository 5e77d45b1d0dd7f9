// Package llm talks to the language model behind the chat and summary
// endpoints.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrAPIKeyRequired indicates that no API key was configured
	ErrAPIKeyRequired = errors.New("API key required")

	// ErrEmptyResponse indicates the model returned no text
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedSummary indicates a summary response lacking a required section
	ErrMalformedSummary = errors.New("malformed summary")
)

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options tunes generation.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultOptions returns the chat defaults.
func DefaultOptions() Options {
	return Options{
		Model:       "gemini-2.5-flash",
		MaxTokens:   1000,
		Temperature: 1,
	}
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
