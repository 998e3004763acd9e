package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds one completion call, streaming included.
const DefaultTimeout = 60 * time.Second

// OpenAIProvider implements Provider for OpenAI-compatible APIs
// (OpenAI, OpenRouter, Groq, DeepSeek, vLLM, etc.)
type OpenAIProvider struct {
	name         string
	apiBase      string
	defaultModel string
	timeout      time.Duration
	client       *openai.Client
}

// NewOpenAIProvider creates a provider against apiBase. A non-positive
// timeout uses DefaultTimeout.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string, timeout time.Duration) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = apiBase
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		name:         name,
		apiBase:      apiBase,
		defaultModel: defaultModel,
		timeout:      timeout,
		client:       openai.NewClientWithConfig(config),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }
func (p *OpenAIProvider) APIBase() string      { return p.apiBase }

// resolveModel returns the model ID to use for a request.
// OpenRouter model IDs require a provider prefix (e.g. "x-ai/grok-4-fast");
// an unprefixed model falls back to the provider's default.
func (p *OpenAIProvider) resolveModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	if p.name == "openrouter" && !strings.Contains(model, "/") {
		return p.defaultModel
	}
	return model
}

func (p *OpenAIProvider) buildRequest(req ChatRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       p.resolveModel(req.Model),
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, wrapError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyCompletion)
	}

	result := &ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if strings.TrimSpace(result.Content) == "" {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyCompletion)
	}
	return result, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("%s: stream: %w", p.name, wrapError(err))
	}
	defer stream.Close()

	var sb strings.Builder
	result := &ChatResponse{}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: stream: %w", p.name, wrapError(err))
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			sb.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(StreamChunk{Content: choice.Delta.Content})
			}
		}
		if choice.FinishReason != "" {
			result.FinishReason = string(choice.FinishReason)
		}
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	result.Content = sb.String()
	if strings.TrimSpace(result.Content) == "" {
		return nil, fmt.Errorf("%s: stream: %w", p.name, ErrEmptyCompletion)
	}
	return result, nil
}

// wrapError surfaces non-2xx answers as *HTTPError.
func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &HTTPError{Status: reqErr.HTTPStatusCode, Body: body}
	}
	return err
}
