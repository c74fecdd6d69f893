package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/retry"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultTimeout = 15 * time.Second
)

// ErrNoChoices is returned when a successful response carries no reply text.
var ErrNoChoices = errors.New("openai: no reply text in response")

// KeySource resolves the bearer token used for every request.
type KeySource interface {
	Resolve(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	// Message is the provider's error message when the body is an OpenAI-style
	// error envelope.
	Message    string
	retryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// RetryAfter returns the server-provided Retry-After hint, if any.
func (e *HTTPStatusError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.retryAfter > 0
}

// Client is a focused OpenAI-compatible client for chat completions. Groq,
// OpenAI and OpenRouter all accept the same wire format.
type Client struct {
	url        string
	httpClient *http.Client
	key        KeySource
	logger     *slog.Logger
	logBodies  bool
	now        func() time.Time
}

type Option func(*Client)

// WithBaseURL accepts either an API base ("https://api.groq.com/openai/v1")
// or a full chat completions endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.url = chatURL(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithResponseLogging logs raw response bodies instead of only the status.
func WithResponseLogging(enabled bool) Option {
	return func(c *Client) {
		c.logBodies = enabled
	}
}

// NewClient creates a Client. The key is resolved on every call, so sources
// are expected to cache.
func NewClient(key KeySource, opts ...Option) (*Client, error) {
	if key == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		url:        chatURL(defaultBaseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		key:        key,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the chat completions endpoint in use.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasSuffix(base, "/chat/completions"):
		return base
	case strings.HasSuffix(base, "/v1"):
		return base + "/chat/completions"
	default:
		return base + "/v1/chat/completions"
	}
}

// Chat sends the messages and returns the first choice's trimmed content.
func (c *Client) Chat(ctx context.Context, in domain.CompletionRequest) (string, error) {
	if in.Model == "" {
		return "", errors.New("openai: model must not be empty")
	}

	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("openai: resolve api key: %w", err)
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(goopenai.ChatCompletionRequest{
		Model:       in.Model,
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload goopenai.ChatCompletionResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", ErrNoChoices
	}
	result := strings.TrimSpace(payload.Choices[0].Message.Content)
	if result == "" {
		return "", ErrNoChoices
	}
	return result, nil
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		statusErr := &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.url,
			Body:       string(buf),
			Message:    errorMessage(buf),
		}
		if d, ok := retry.ParseRetryAfter(res.Header, c.now()); ok {
			statusErr.retryAfter = d
		}
		return nil, statusErr
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if c.logBodies {
		c.logger.Info("completion response", "status", res.StatusCode, "body", string(buf))
	} else {
		c.logger.Debug("completion response", "status", res.StatusCode)
	}
	return buf, nil
}

func errorMessage(body []byte) string {
	var envelope goopenai.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return envelope.Error.Message
}
