package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/graphmill/graphmill/pkg/ai"
)

// Result is one successful generation with its accounting: which provider
// served it, what it cost, and how long it took.
type Result struct {
	Provider string
	Response *ai.Response
	Cost     float64
	Duration time.Duration
}

// Client issues one generation request to one provider. It enforces the
// provider's rolling request ceiling before sending, computes cost from
// token usage afterwards, and classifies transport failures so the
// dispatcher can decide what to do with them.
//
// A Client should be created using NewClient.
type Client struct {
	registry *Registry
	governor *Governor
	backends map[string]ai.Backend
}

// NewClientParams contains the dependencies of a Client.
//
// Backends maps provider IDs to transports. A provider in the registry with
// no backend entry has no credentials configured and is skipped by the
// dispatcher rather than treated as an error.
type NewClientParams struct {
	Registry *Registry
	Governor *Governor
	Backends map[string]ai.Backend
}

// NewClient creates a client over the given registry, governor and
// transports.
func NewClient(params NewClientParams) *Client {
	backends := params.Backends
	if backends == nil {
		backends = map[string]ai.Backend{}
	}
	return &Client{
		registry: params.Registry,
		governor: params.Governor,
		backends: backends,
	}
}

// HasCredentials reports whether a transport is configured for the
// provider.
func (c *Client) HasCredentials(providerID string) bool {
	_, ok := c.backends[providerID]
	return ok
}

// Saturated reports whether the provider's request ceiling is currently
// exhausted.
func (c *Client) Saturated(providerID string) bool {
	spec, err := c.registry.Lookup(providerID)
	if err != nil {
		return true
	}
	return c.governor.Saturated(providerID, spec.RequestsPerMinute)
}

// Registry returns the catalog this client dispatches against.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Backend returns the transport configured for the provider, if any.
func (c *Client) Backend(providerID string) (ai.Backend, bool) {
	b, ok := c.backends[providerID]
	return b, ok
}

// Send issues one generation request to the named provider. Before sending
// it performs an atomic check-and-increment against the provider's rolling
// one-minute request counter and fails fast with a rate-limit error when the
// ceiling is reached; the caller decides whether to rotate to another
// provider. On success the estimated cost is added to the governor's daily
// spend.
func (c *Client) Send(
	ctx context.Context,
	providerID string,
	prompt string,
	opts ...ai.GenerateOption,
) (*Result, error) {
	spec, err := c.registry.Lookup(providerID)
	if err != nil {
		return nil, &ai.ProviderError{Provider: providerID, Kind: ai.KindNonRetryable, Err: err}
	}

	backend, ok := c.backends[providerID]
	if !ok {
		return nil, &ai.ProviderError{
			Provider: providerID,
			Kind:     ai.KindNonRetryable,
			Err:      fmt.Errorf("no credentials configured for provider %s", providerID),
		}
	}

	options := ai.GenerateOptions{}
	for _, o := range opts {
		o(&options)
	}
	if options.MaxOutputTokens > spec.MaxTokens {
		return nil, &ai.ProviderError{
			Provider: providerID,
			Kind:     ai.KindNonRetryable,
			Err:      fmt.Errorf("max output tokens %d exceeds provider limit %d", options.MaxOutputTokens, spec.MaxTokens),
		}
	}

	if !c.governor.TryAcquire(providerID, spec.RequestsPerMinute) {
		return nil, ai.RateLimited(providerID)
	}

	start := time.Now()
	response, err := backend.Generate(ctx, prompt, opts...)
	if err != nil {
		return nil, ai.Classify(providerID, err)
	}
	duration := time.Since(start)

	cost := float64(response.TotalTokens()) / 1000 * spec.CostPer1KTokens
	if cost > 0 {
		c.governor.AddSpend(cost)
	}

	return &Result{
		Provider: providerID,
		Response: response,
		Cost:     cost,
		Duration: duration,
	}, nil
}
