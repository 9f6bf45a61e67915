// Package llm wraps the language model transport shared by every
// collaborator: one client per configured model, with rate limiting,
// bounded retry, and a per-call timeout.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Client is a rate-limited wrapper around one chat model. Safe for
// concurrent use.
type Client struct {
	model      llms.Model
	modelName  string
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	logger     *logging.Logger
}

// New builds a client for the named model against the configured
// OpenAI-compatible endpoint.
func New(cfg config.LLMConfig, modelName string, logger *logging.Logger) (*Client, error) {
	opts := []openai.Option{
		openai.WithModel(modelName),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		model:      model,
		modelName:  modelName,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		timeout:    cfg.RequestTimeout.Duration(),
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("llm"),
	}, nil
}

// NewWithModel wraps an existing model, bypassing the endpoint setup.
// Used by tests to inject a fake.
func NewWithModel(model llms.Model, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		model:   model,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger.Named("llm"),
	}
}

// Complete sends a system/user prompt pair and returns the raw text of
// the first choice.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt)
}

// CompleteJSON is Complete with the model's JSON output mode enabled.
// Callers still decode defensively; JSON mode reduces but does not
// eliminate malformed output.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt, llms.WithJSONMode())
}

func (c *Client) generate(ctx context.Context, system, prompt string, callOpts ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	attempt := func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}

		cctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := c.model.GenerateContent(cctx, messages, callOpts...)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			c.logger.Warn(ctx, "completion failed, may retry",
				zap.String("model", c.modelName),
				zap.Error(err))
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("model returned no choices")
		}
		c.logger.Debug(ctx, "completion ok",
			zap.String("model", c.modelName),
			zap.Duration("elapsed", time.Since(start)))
		return resp.Choices[0].Content, nil
	}

	if c.maxRetries <= 0 {
		return attempt()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)))
}
