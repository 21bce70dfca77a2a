package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client the provider uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// UsageRecorder receives the token usage of every successful completion.
type UsageRecorder interface {
	RecordUsage(model string, promptTokens, completionTokens int)
}

// Provider provides chat completions against an OpenAI compatible API.
type Provider struct {
	client ChatClient
	config Config
	usage  UsageRecorder
}

// NewProvider creates a new AI provider.
func NewProvider(cfg Config) *Provider {
	cfg = withDefaults(cfg)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return NewProviderWithClient(openai.NewClientWithConfig(clientConfig), cfg)
}

// NewProviderWithClient creates a provider over an existing client.
func NewProviderWithClient(client ChatClient, cfg Config) *Provider {
	return &Provider{client: client, config: withDefaults(cfg)}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	return cfg
}

// SetUsageRecorder installs r to receive token usage. Not safe to call
// concurrently with Complete.
func (p *Provider) SetUsageRecorder(r UsageRecorder) {
	p.usage = r
}

// Model returns the chat model name.
func (p *Provider) Model() string {
	return p.config.Model
}

// Complete performs a chat completion, retrying transient failures.
func (p *Provider) Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = p.config.Model
	}

	var resp openai.ChatCompletionResponse
	err := p.doWithRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		start := time.Now()
		r, err := p.client.CreateChatCompletion(reqCtx, req)
		if err != nil {
			return err
		}
		if len(r.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		slog.Debug("chat completion finished",
			"model", req.Model,
			"latency_ms", time.Since(start).Milliseconds(),
			"tokens", r.Usage.TotalTokens)
		resp = r
		return nil
	})
	if err == nil && p.usage != nil {
		model := resp.Model
		if model == "" {
			model = req.Model
		}
		p.usage.RecordUsage(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("failed to complete chat: %w", err)
	}
	return resp, nil
}

// ChatJSON asks the model for a reply conforming to schema and decodes it
// into out.
func (p *Provider) ChatJSON(ctx context.Context, system, user, schemaName string, schema *JSONSchema, out any) error {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	return p.CompleteJSON(ctx, messages, schemaName, schema, out)
}

// CompleteJSON continues a conversation with a strict JSON schema reply and
// decodes it into out.
func (p *Provider) CompleteJSON(ctx context.Context, messages []openai.ChatCompletionMessage, schemaName string, schema *JSONSchema, out any) error {
	req := openai.ChatCompletionRequest{
		Temperature: 0,
		Messages:    messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		},
	}

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	content := StripCodeFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		slog.Warn("failed to parse LLM response", "schema", schemaName, "error", err)
		return fmt.Errorf("parse response failed: %w", err)
	}
	return nil
}

// Ping checks API connectivity by listing models.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("failed to reach AI provider: %w", err)
	}
	return nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt < p.config.MaxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * p.config.RetryBaseDelay
			slog.Debug("AI request failed, retrying",
				"attempt", attempt+1,
				"wait_time", waitTime,
				"error", err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors and transport failures.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

var codeFenceRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// StripCodeFence removes a surrounding markdown code block, if any.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeFenceRegex.FindStringSubmatch(content); len(matches) > 1 {
			return matches[1]
		}
	}
	return content
}
