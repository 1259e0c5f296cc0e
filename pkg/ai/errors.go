package ai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ErrorKind buckets provider failures by how the caller should react.
type ErrorKind int

const (
	// KindRateLimited means the provider refused the request because its
	// request ceiling is exhausted. Retryable, but not against the same
	// provider within the current window.
	KindRateLimited ErrorKind = iota
	// KindTransient covers timeouts and 5xx-equivalent failures.
	KindTransient
	// KindNonRetryable covers bad credentials and malformed requests;
	// repeating the identical call cannot succeed.
	KindNonRetryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindNonRetryable:
		return "non_retryable"
	}
	return "unknown"
}

// ProviderError is a provider failure tagged with its classification. The
// classification is the single piece of domain knowledge the fallback
// dispatcher relies on.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a different attempt could still succeed.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// RateLimited builds a rate-limit ProviderError without an underlying
// transport error, for local fail-fast rejections.
func RateLimited(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindRateLimited,
		Err:      errors.New("request ceiling exhausted for current window"),
	}
}

// Classify wraps a raw transport error into a ProviderError. Rate-limit
// responses map to KindRateLimited, timeouts and 5xx-equivalents to
// KindTransient, auth and request errors to KindNonRetryable. Unrecognized
// errors default to transient so a different provider still gets a chance.
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var existing *ProviderError
	if errors.As(err, &existing) {
		return existing
	}

	kind := KindTransient

	var apiErr *openai.Error
	var ollamaErr api.StatusError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		kind = classifyStatus(apiErr.StatusCode)
	case errors.As(err, &ollamaErr):
		kind = classifyStatus(ollamaErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTransient
	}

	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	case status == 408:
		return KindTransient
	case status >= 400:
		return KindNonRetryable
	}
	return KindTransient
}

// AllProvidersFailed is the aggregate failure of one dispatch call: every
// configured provider failed on every pass. It carries the last error seen.
type AllProvidersFailed struct {
	Passes  int
	LastErr error
}

func (e *AllProvidersFailed) Error() string {
	return fmt.Sprintf("all providers failed after %d passes: %v", e.Passes, e.LastErr)
}

func (e *AllProvidersFailed) Unwrap() error {
	return e.LastErr
}

// ParseError marks model output that did not match the expected structured
// shape even after repair.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure in %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
