package usecase

import (
	"context"
	"errors"
	"strings"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/logging"
	"axioma-bot/internal/retry"
)

const (
	DefaultModel       = "llama3-70b-8192"
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 500
)

type LLMClient interface {
	Chat(ctx context.Context, in domain.CompletionRequest) (string, error)
}

type CompleterConfig struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	CTAURL       string
}

// Completer asks the completion API for a reply and turns failures into
// customer-facing fallback text.
type Completer struct {
	llm    LLMClient
	policy *retry.Policy
	cfg    CompleterConfig
}

// Reply is the outcome of Respond. Err is set when Text is a fallback.
type Reply struct {
	Text string
	Err  *UpstreamError
}

// NewCompleter builds a Completer. A nil policy retries rate limits with
// retry.Default.
func NewCompleter(llm LLMClient, cfg CompleterConfig, policy *retry.Policy) (*Completer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = Persona
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if policy == nil {
		policy = retry.Default(isRateLimited)
	}
	if policy.Retryable == nil {
		policy.Retryable = isRateLimited
	}
	return &Completer{llm: llm, policy: policy, cfg: cfg}, nil
}

func (c *Completer) Model() string {
	return c.cfg.Model
}

// Complete returns the raw model reply. Errors are *UpstreamError.
func (c *Completer) Complete(ctx context.Context, history []domain.Turn, userText string) (string, error) {
	req := domain.CompletionRequest{
		Model:       c.cfg.Model,
		Messages:    buildPromptMessages(c.cfg.SystemPrompt, history, userText),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	logger := logging.FromContext(ctx)

	var reply string
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		out, err := c.llm.Chat(ctx, req)
		if err != nil {
			if isRateLimited(err) {
				logger.Warn("completion rate limited", "attempt", attempt, "max_attempts", c.policy.MaxAttempts)
			}
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", categorize(err)
	}
	return reply, nil
}

// Respond always yields text to send: the model reply with the CTA link, or
// the fallback matching the failure category.
func (c *Completer) Respond(ctx context.Context, history []domain.Turn, userText string) Reply {
	reply, err := c.Complete(ctx, history, userText)
	if err != nil {
		upstreamErr := categorize(err)
		logging.FromContext(ctx).Error("completion failed",
			"category", upstreamErr.Category,
			"status", upstreamErr.Status,
			"err", upstreamErr.Err,
		)
		return Reply{Text: fallbackFor(upstreamErr), Err: upstreamErr}
	}
	return Reply{Text: withCTA(reply, c.cfg.CTAURL)}
}
