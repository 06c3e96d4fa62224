// Package ai wraps the Anthropic API behind a synchronous Generate call
// with retry, rate limiting, and a concurrency cap.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tobyh/sonarfix/internal/retry"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

const defaultMaxTokens = 4096

// Generator is the language-model contract the agents consume. The
// production implementation is *Client; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds client construction options.
type Config struct {
	APIKey         string
	Model          string       // default: DefaultModel
	Retry          retry.Policy // zero value: retry.DefaultPolicy()
	MaxConcurrent  int          // concurrent API calls, default 3
	RequestsPerMin int          // rate limit, default 30
	Timeout        time.Duration
}

// Client is a synchronous Anthropic client.
type Client struct {
	client  anthropic.Client
	model   string
	policy  retry.Policy
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient builds a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		policy:  policy,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), maxConcurrent),
		timeout: timeout,
	}, nil
}

// Generate sends a single-prompt request and returns the concatenated
// text blocks of the response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire model call slot: %w", err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	var response *anthropic.Message

	err := retry.Do(ctx, c.policy, "model generate", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: defaultMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return err
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	slog.Debug("model call finished",
		"model", c.model,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
		"duration", time.Since(start))

	return text, nil
}
