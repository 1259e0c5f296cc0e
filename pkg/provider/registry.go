package provider

import "fmt"

// Spec is the static description of one text-generation provider: its model,
// context budget, pricing and published rate ceilings. Specs never change at
// runtime; mutable per-provider state lives in the Governor.
type Spec struct {
	ID                string
	Model             string
	MaxTokens         int     // Provider-side context limit in tokens
	CostPer1KTokens   float64 // USD per 1000 total tokens
	RequestsPerMinute int
	TokensPerMinute   int
	CharsPerToken     float64 // Approximate ratio used for local token estimates
	Encoding          string  // Optional tiktoken encoding for exact estimates
}

// Registry is a static catalog of provider specs, looked up by ID.
//
// A Registry should be created using NewRegistry.
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry creates a registry from the given specs. Order is preserved
// and doubles as the default dispatch priority.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{
		specs: make(map[string]Spec, len(specs)),
		order: make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		if _, ok := r.specs[spec.ID]; ok {
			continue
		}
		r.specs[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}
	return r
}

// Lookup returns the spec for the given provider ID.
func (r *Registry) Lookup(providerID string) (Spec, error) {
	spec, ok := r.specs[providerID]
	if !ok {
		return Spec{}, fmt.Errorf("unknown provider: %s", providerID)
	}
	return spec, nil
}

// Priority returns the provider IDs in registration order.
func (r *Registry) Priority() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultSpecs returns the built-in provider catalog. Constants here mirror
// published provider limits; deployments with different quotas should build
// their own registry.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			ID:                "openai",
			Model:             "gpt-4o-mini",
			MaxTokens:         128000,
			CostPer1KTokens:   0.0006,
			RequestsPerMinute: 500,
			TokensPerMinute:   200000,
			CharsPerToken:     4,
			Encoding:          "o200k_base",
		},
		{
			ID:                "ollama",
			Model:             "llama3.1:8b",
			MaxTokens:         32768,
			CostPer1KTokens:   0,
			RequestsPerMinute: 120,
			TokensPerMinute:   100000,
			CharsPerToken:     4,
		},
	}
}
