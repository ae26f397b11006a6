package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/finbrain/finbrain/internal/metrics"
)

// OpenAICompleter talks to any OpenAI-compatible chat completion API
// (Groq by default).
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// OpenAIConfig holds the completion provider settings.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("completion", "error").Inc()
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMCallsTotal.WithLabelValues("completion", "error").Inc()
		return "", fmt.Errorf("model %s: %w", c.model, ErrEmptyCompletion)
	}

	metrics.LLMCallsTotal.WithLabelValues("completion", "success").Inc()
	slog.Debug("completion finished",
		"model", c.model,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseAPIError extracts a readable message from the provider error and
// wraps it with ErrProvider.
func parseAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("completion API error %d: %s: %w", reqErr.HTTPStatusCode, detail, ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
	}

	return fmt.Errorf("completion request failed: %v: %w", err, ErrProvider)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return parsed.Detail
}
