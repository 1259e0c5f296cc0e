package ai

import (
	"context"
)

// GenerateOptions holds configuration for a single generation request.
type GenerateOptions struct {
	System            string  // System instruction prepended to the request
	Temperature       float64 // Sampling temperature (0.0-2.0)
	MaxOutputTokens   int     // Upper bound on completion tokens, 0 = backend default
	Format            any     // JSON schema; non-nil asks for machine-parsable output
	FormatName        string  // Schema name passed to providers that require one
	FormatDescription string  // Schema description passed alongside the name
}

// GenerateOption is a functional option for configuring generation requests.
type GenerateOption func(*GenerateOptions)

// WithSystemPrompt returns a GenerateOption that sets the system instruction.
func WithSystemPrompt(system string) GenerateOption {
	return func(o *GenerateOptions) {
		o.System = system
	}
}

// WithTemperature returns a GenerateOption that sets the sampling
// temperature. Lower values make output more deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxOutputTokens returns a GenerateOption that caps the completion
// length.
func WithMaxOutputTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxOutputTokens = tokens
	}
}

// WithFormat returns a GenerateOption that requests structured output
// matching the given JSON schema. Providers may ignore the hint; callers
// must still validate the returned text.
func WithFormat(name string, description string, schema any) GenerateOption {
	return func(o *GenerateOptions) {
		o.FormatName = name
		o.FormatDescription = description
		o.Format = schema
	}
}

// Response is the normalized result of one generation request.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (r *Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// ModelMetrics contains token usage and timing accumulated by a backend
// since the last reset.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Backend is one text-generation transport. Implementations must be safe
// for concurrent use; errors should be returned raw so the provider layer
// can classify them.
type Backend interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error)
	GetMetrics() ModelMetrics
	ResetMetrics()
}
