package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the expected JSON shape stored in SSM for tokens.
type tokenPayload struct {
	Token string `json:"token"`
}

// Secret resolves a credential either from a static value or, when none was
// configured, from a SecureString parameter holding {"token": "..."}.
// Successful lookups are cached for the lifetime of the process; failures are
// retried on the next call.
type Secret struct {
	static string
	getter Getter
	name   string

	mu     sync.Mutex
	cached string
}

// StaticSecret returns a Secret that always resolves to value.
func StaticSecret(value string) *Secret {
	return &Secret{static: strings.TrimSpace(value)}
}

// NewSecret prefers value; getter and name are only used when value is empty.
func NewSecret(value string, getter Getter, name string) *Secret {
	return &Secret{
		static: strings.TrimSpace(value),
		getter: getter,
		name:   strings.TrimSpace(name),
	}
}

// Present reports whether a value is configured or can be fetched.
func (s *Secret) Present() bool {
	if s == nil {
		return false
	}
	return s.static != "" || (s.getter != nil && s.name != "")
}

func (s *Secret) Resolve(ctx context.Context) (string, error) {
	if s == nil {
		return "", errors.New("paramstore: secret is nil")
	}
	if s.static != "" {
		return s.static, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" {
		return s.cached, nil
	}
	token, err := fetchToken(ctx, s.getter, s.name)
	if err != nil {
		return "", err
	}
	s.cached = token
	return token, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: secret not configured")
	}
	if name == "" {
		return "", errors.New("paramstore: token parameter name is empty")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("paramstore: token is empty")
	}
	return strings.TrimSpace(tp.Token), nil
}
