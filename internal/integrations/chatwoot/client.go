package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// AuthMode selects where the access token is placed on outgoing requests.
type AuthMode string

const (
	// AuthQuery sends ?api_access_token=TOKEN, which survives proxies that
	// strip unknown headers.
	AuthQuery  AuthMode = "query"
	AuthHeader AuthMode = "header"
	AuthBearer AuthMode = "bearer"
)

// ParseAuthMode maps a configuration value to an AuthMode; anything
// unrecognized falls back to the custom header.
func ParseAuthMode(v string) AuthMode {
	switch AuthMode(strings.ToLower(strings.TrimSpace(v))) {
	case AuthQuery:
		return AuthQuery
	case AuthBearer:
		return AuthBearer
	default:
		return AuthHeader
	}
}

// TokenSource resolves the platform access token.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx platform responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatwoot: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Message is the subset of the created message returned by the API.
type Message struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type createMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// Client posts messages into platform conversations.
type Client struct {
	baseURL    string
	token      TokenSource
	authMode   AuthMode
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithAuthMode(mode AuthMode) Option {
	return func(c *Client) {
		c.authMode = mode
	}
}

func NewClient(baseURL string, token TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chatwoot: base url must not be empty")
	}
	if token == nil {
		return nil, errors.New("chatwoot: token source must not be nil")
	}
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		authMode:   AuthQuery,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) messagesURL(accountID, conversationID string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s/conversations/%s/messages",
		c.baseURL, url.PathEscape(accountID), url.PathEscape(conversationID))
}

// PostMessage creates a public outgoing message in the conversation.
func (c *Client) PostMessage(ctx context.Context, accountID, conversationID, content string) (Message, error) {
	accountID = strings.TrimSpace(accountID)
	conversationID = strings.TrimSpace(conversationID)
	if accountID == "" || conversationID == "" {
		return Message{}, errors.New("chatwoot: account id and conversation id are required")
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, errors.New("chatwoot: content is required")
	}
	token, err := c.token.Resolve(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("chatwoot: resolve token: %w", err)
	}

	body, err := json.Marshal(createMessageRequest{
		Content:     content,
		MessageType: "outgoing",
		Private:     false,
	})
	if err != nil {
		return Message{}, fmt.Errorf("chatwoot: marshal request: %w", err)
	}

	endpoint := c.messagesURL(accountID, conversationID)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	switch c.authMode {
	case AuthQuery:
		endpoint += "?api_access_token=" + url.QueryEscape(token)
	case AuthBearer:
		headers.Set("Authorization", "Bearer "+token)
	default:
		headers.Set("api_access_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("chatwoot: create request: %w", err)
	}
	req.Header = headers

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("chatwoot: request failed: %w", redact(err, token))
	}
	defer func() { _ = res.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if len(raw) > 4096 {
			raw = raw[:4096]
		}
		return Message{}, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(raw)}
	}

	var out Message
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return Message{}, fmt.Errorf("chatwoot: decode response: %w", err)
		}
	}
	return out, nil
}

// redact keeps query-string tokens out of transport errors, which embed the
// request URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), url.QueryEscape(token)) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(token), "REDACTED"))
}
