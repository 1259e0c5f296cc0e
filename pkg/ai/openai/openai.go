package openai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graphmill/graphmill/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Backend generates text through an OpenAI-compatible chat completion API.
// Any endpoint speaking the protocol works, which covers the hosted OpenAI
// service as well as most self-hosted gateways.
//
// A Backend should be created using NewBackend.
type Backend struct {
	model string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	client *openai.Client
}

// NewBackendParams contains configuration for creating an OpenAI backend.
//
// Model names the chat model to use. BaseURL overrides the API endpoint
// when set; APIKey is the credential for that endpoint.
type NewBackendParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewBackend creates a new OpenAI-compatible backend.
//
// Example:
//
//	backend := openai.NewBackend(openai.NewBackendParams{
//		Model:  "gpt-4o-mini",
//		APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
func NewBackend(params NewBackendParams) *Backend {
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	return &Backend{
		model:  params.Model,
		client: &client,
	}
}

// Generate sends one chat completion request and returns the normalized
// response. When a format schema is set via ai.WithFormat, the request asks
// for strict JSON-schema output.
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

	msgs := []openai.ChatCompletionMessageParamUnion{}
	if options.System != "" {
		msgs = append(msgs, openai.SystemMessage(options.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxOutputTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxOutputTokens))
	}

	if options.Format != nil {
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        options.FormatName,
					Description: openai.String(options.FormatDescription),
					Schema:      options.Format,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	response, err := b.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	b.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return nil, fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}

	return &ai.Response{
		Text:             message,
		PromptTokens:     int(response.Usage.PromptTokens),
		CompletionTokens: int(response.Usage.CompletionTokens),
	}, nil
}
