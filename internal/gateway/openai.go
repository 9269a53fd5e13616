package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

// OpenAIClient implements ModelClient over the OpenAI-compatible chat
// completions API. A second instance with a different model name serves
// as the independent opinion in reliability consensus.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	timeout      time.Duration
	maxTokens    int
	maxRetries   int
}

// NewOpenAIClient builds a client from config. model overrides the
// config's primary model, which is how the secondary consensus client is
// constructed.
func NewOpenAIClient(cfg model.LLMConfig, modelName string) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	if modelName == "" {
		modelName = cfg.Model
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: modelName,
		timeout:      cfg.Timeout,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   maxRetries,
	}, nil
}

// Name returns the model identifier used in consensus records.
func (c *OpenAIClient) Name() string {
	return c.defaultModel
}

// CompleteJSON runs a chat completion in JSON mode and unmarshals the
// reply into out. A non-conformant reply gets exactly one repair retry
// with a corrective instruction; after that the call fails with
// ErrStructuredOutput. Transient errors are retried with bounded
// exponential backoff; a timed-out call counts as a failure for backoff
// purposes, not a budget refund.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, req Request, out any) (Usage, error) {
	content, usage, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return usage, err
	}

	if err := json.Unmarshal([]byte(stripFences(content)), out); err == nil {
		return usage, nil
	}

	// One repair attempt with a corrective instruction.
	repair := req
	repair.Prompt = req.Prompt + "\n\nYour previous reply was not a valid JSON object for the requested schema. Reply again with only the JSON object, no prose, no code fences."
	content, repairUsage, err := c.completeWithRetry(ctx, repair)
	usage = addUsage(usage, repairUsage)
	if err != nil {
		return usage, err
	}

	if err := json.Unmarshal([]byte(stripFences(content)), out); err != nil {
		logging.New("gateway").Warn("structured output repair failed",
			"model", c.defaultModel, "error", err)
		return usage, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	return usage, nil
}

func (c *OpenAIClient) completeWithRetry(ctx context.Context, req Request) (string, Usage, error) {
	var usage Usage
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt-1, time.Second, 20*time.Second)); err != nil {
				return "", usage, err
			}
		}

		content, callUsage, err := c.completeOnce(ctx, req)
		usage = addUsage(usage, callUsage)
		if err == nil {
			return content, usage, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return "", usage, err
		}
		if !retryable(err) {
			return "", usage, err
		}
	}

	return "", usage, fmt.Errorf("completion after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *OpenAIClient) completeOnce(ctx context.Context, req Request) (string, Usage, error) {
	timeout := c.timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", Usage{}, classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("empty completion response")
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), usage, nil
}

// classify maps API errors onto the gateway's sentinel errors.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}
	return err
}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrThrottled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	// Network-level failures surface as plain errors.
	return true
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func addUsage(a, b Usage) Usage {
	return Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
