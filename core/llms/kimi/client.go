package kimi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxpet/voxpet-core/core/llms"
	"github.com/voxpet/voxpet-core/core/ratelimit"
)

const (
	defaultBaseURL = "https://api.moonshot.cn/v1"
	defaultModel   = "kimi-latest"
)

// Client talks to the Moonshot (Kimi) chat completion API, which is
// OpenAI-compatible. Rate-limit rejections are surfaced as
// ratelimit.RateLimitError so the gateway can pace retries.
type Client struct {
	client *openai.Client
	model  string
}

type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL string
	model   string
}

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *clientConfig) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithModel overrides the model used for completions.
func WithModel(model string) ClientOption {
	return func(c *clientConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// NewClient creates a Kimi client. An empty apiKey falls back to the
// KIMI_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("KIMI_API_KEY"); !ok {
			return nil, fmt.Errorf("kimi api key not found")
		}
	}

	cfg := clientConfig{baseURL: defaultBaseURL, model: defaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.baseURL
	clientConfig.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.model,
	}, nil
}

// Complete issues a non-streaming chat completion, the probe call used to
// detect tool-call requests.
func (c *Client) Complete(ctx context.Context, req llms.CompletionRequest) (*llms.Completion, error) {
	ctx, span := tracer.Start(ctx, "chat completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.messages", len(req.Messages)),
	)

	response, err := c.client.CreateChatCompletion(ctx, c.chatRequest(req, false))
	if err != nil {
		err = classifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(response.Choices) == 0 {
		err := fmt.Errorf("inference service returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	choice := response.Choices[0]
	span.SetAttributes(attribute.String("response.finish_reason", string(choice.FinishReason)))

	return &llms.Completion{
		FinishReason: llms.FinishReason(choice.FinishReason),
		Message:      fromChatMessage(choice.Message),
	}, nil
}

// StreamCompletion issues a streaming chat completion. The request is opened
// lazily when Chunks is first consumed.
func (c *Client) StreamCompletion(ctx context.Context, req llms.CompletionRequest) llms.Stream {
	return &stream{client: c.client, request: c.chatRequest(req, true), model: c.model}
}

func (c *Client) chatRequest(req llms.CompletionRequest, streaming bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(req.Messages),
		Tools:       toChatTools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      streaming,
	}
}

type stream struct {
	client  *openai.Client
	request openai.ChatCompletionRequest
	model   string
}

func (s *stream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "chat completion stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))

		sdkStream, err := s.client.CreateChatCompletionStream(ctx, s.request)
		if err != nil {
			err = classifyError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield("", err)
			return
		}
		defer sdkStream.Close()

		firstChunk := true
		for {
			response, err := sdkStream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				err = classifyError(err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield("", err)
				return
			}
			if len(response.Choices) == 0 {
				continue
			}

			if firstChunk {
				span.AddEvent("received first chunk", trace.WithAttributes(
					attribute.String("response.id", response.ID),
				))
				firstChunk = false
			}

			if content := response.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

// classifyError maps rate-limit rejections onto ratelimit.RateLimitError and
// passes everything else through unchanged.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &ratelimit.RateLimitError{Message: apiErr.Message}
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate_limit") {
		return &ratelimit.RateLimitError{Message: err.Error()}
	}
	return err
}
