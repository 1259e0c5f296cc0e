package provider

import (
	"context"
	"errors"
	"time"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/logger"
)

const (
	defaultMaxPasses = 3
	defaultBaseDelay = time.Second
)

// Dispatcher tries providers in priority order with bounded retries and
// exponential backoff, returning the first success or an aggregated
// failure. This is the only place retries happen; downstream components
// treat a dispatch as an at-least-one-attempt, may-fail primitive.
//
// A Dispatcher should be created using NewDispatcher.
type Dispatcher struct {
	client    *Client
	priority  []string
	maxPasses int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewDispatcherParams contains configuration for creating a Dispatcher.
//
// Priority lists provider IDs in fallback order; empty means registry
// order. MaxPasses is the retry budget R of full passes over the list
// (default 3). BaseDelay seeds the exponential backoff between passes
// (default 1s).
type NewDispatcherParams struct {
	Client    *Client
	Priority  []string
	MaxPasses int
	BaseDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher over the given client.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	priority := params.Priority
	if len(priority) == 0 {
		priority = params.Client.Registry().Priority()
	}
	maxPasses := params.MaxPasses
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}
	baseDelay := params.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	sleep := params.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return &Dispatcher{
		client:    params.Client,
		priority:  priority,
		maxPasses: maxPasses,
		baseDelay: baseDelay,
		sleep:     sleep,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatch runs one logical request against the provider list. Providers
// whose credentials are absent or whose rate limit is currently exhausted
// are skipped without an attempt. Retryable and non-retryable failures both
// rotate to the next provider (a different provider may still succeed);
// between full passes the dispatcher backs off baseDelay × 2^(pass-1).
// When every provider fails on every pass it returns an
// ai.AllProvidersFailed carrying the last error.
//
// The returned result's Attempts counts provider calls beyond the first
// that were needed to reach success.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (*Result, int, error) {
	var lastErr error
	attempts := 0
	sawSaturated := false

	for pass := 1; pass <= d.maxPasses; pass++ {
		for _, providerID := range d.priority {
			if ctx.Err() != nil {
				return nil, attempts, ctx.Err()
			}
			if !d.client.HasCredentials(providerID) {
				continue
			}
			if d.client.Saturated(providerID) {
				logger.Debug("[Dispatch] Skipping saturated provider", "provider", providerID, "pass", pass)
				sawSaturated = true
				continue
			}

			attempts++
			result, err := d.client.Send(ctx, providerID, prompt, opts...)
			if err == nil {
				return result, attempts - 1, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, attempts - 1, err
			}
			lastErr = err

			var provErr *ai.ProviderError
			if errors.As(err, &provErr) && !provErr.Retryable() {
				logger.Warn("[Dispatch] Non-retryable provider failure, rotating", "provider", providerID, "err", err)
				continue
			}
			logger.Debug("[Dispatch] Provider failed, rotating", "provider", providerID, "pass", pass, "err", err)
		}

		if pass < d.maxPasses {
			delay := d.baseDelay * time.Duration(1<<(pass-1))
			if err := d.sleep(ctx, delay); err != nil {
				return nil, attempts, err
			}
		}
	}

	if lastErr == nil {
		if sawSaturated {
			lastErr = errors.New("every provider rate limited")
		} else {
			lastErr = errors.New("no provider with credentials available")
		}
	}
	return nil, attempts, &ai.AllProvidersFailed{Passes: d.maxPasses, LastErr: lastErr}
}
