package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/graphmill/graphmill/pkg/ai"

	"github.com/ollama/ollama/api"
)

// Backend generates text through a locally-hosted Ollama server.
//
// A Backend should be created using NewBackend.
type Backend struct {
	model string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	client *api.Client
}

// NewBackendParams contains configuration for creating an Ollama backend.
type NewBackendParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewBackend creates a new Ollama backend talking to the server at BaseURL
// (or the default local address when empty). The APIKey, when set, is sent
// as a bearer token for servers behind an authenticating proxy.
func NewBackend(params NewBackendParams) (*Backend, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.APIKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	return &Backend{
		model:  params.Model,
		client: api.NewClient(u, httpClient),
	}, nil
}

// Generate sends one chat request and returns the normalized response. A
// format schema set via ai.WithFormat is passed through as Ollama's
// structured-output format.
func (b *Backend) Generate(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (*ai.Response, error) {
	options := ai.GenerateOptions{
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := []api.Message{}
	if options.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: options.System})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    b.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxOutputTokens > 0 {
		req.Options["num_predict"] = options.MaxOutputTokens
	}

	if options.Format != nil {
		formatBytes, err := json.Marshal(options.Format)
		if err != nil {
			return nil, err
		}
		req.Format = json.RawMessage(formatBytes)
	}

	var final api.ChatResponse
	if err := b.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return nil, err
	}

	b.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if final.Message.Content == "" {
		return nil, fmt.Errorf("empty response from model %s", b.model)
	}

	return &ai.Response{
		Text:             final.Message.Content,
		PromptTokens:     final.Metrics.PromptEvalCount,
		CompletionTokens: final.Metrics.EvalCount,
	}, nil
}
