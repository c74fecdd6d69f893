package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/integrations/openai"
	"axioma-bot/internal/retry"
)

type chatResponse struct {
	answer string
	err    error
}

type mockLLM struct {
	responses []chatResponse
	callCount int
	requests  []domain.CompletionRequest
}

func (m *mockLLM) Chat(_ context.Context, in domain.CompletionRequest) (string, error) {
	m.requests = append(m.requests, in)
	if len(m.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := m.callCount
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.callCount++
	return m.responses[idx].answer, m.responses[idx].err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func statusErr(code int) error {
	return fmt.Errorf("openai: request failed: %w", &openai.HTTPStatusError{StatusCode: code, URL: "https://api.test/v1/chat/completions"})
}

func instantPolicy(waits *[]time.Duration) *retry.Policy {
	return retry.Default(nil).WithSleeper(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

func newTestCompleter(t *testing.T, llm LLMClient, cfg CompleterConfig, waits *[]time.Duration) *Completer {
	t.Helper()
	c, err := NewCompleter(llm, cfg, instantPolicy(waits))
	require.NoError(t, err)
	return c
}

func TestNewCompleter_ValidatesAndDefaults(t *testing.T) {
	_, err := NewCompleter(nil, CompleterConfig{}, nil)
	require.Error(t, err)

	c, err := NewCompleter(&mockLLM{}, CompleterConfig{}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultModel, c.Model())
	require.Equal(t, Persona, c.cfg.SystemPrompt)
	require.InDelta(t, 0.8, c.cfg.Temperature, 0.0001)
	require.Equal(t, 500, c.cfg.MaxTokens)
	require.Equal(t, 3, c.policy.MaxAttempts)
	require.NotNil(t, c.policy.Retryable)
}

func TestComplete_BuildsRequest(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{answer: "¡Hola! 😊"}}}
	var waits []time.Duration
	c := newTestCompleter(t, llm, CompleterConfig{Model: "llama3-70b-8192"}, &waits)

	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "hola"},
		{Role: domain.RoleAssistant, Text: "¡Buenas!"},
	}
	reply, err := c.Complete(context.Background(), history, "¿qué hacéis?")
	require.NoError(t, err)
	require.Equal(t, "¡Hola! 😊", reply)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	require.Equal(t, "llama3-70b-8192", req.Model)
	require.InDelta(t, 0.8, req.Temperature, 0.0001)
	require.Equal(t, 500, req.MaxTokens)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: Persona},
		{Role: domain.RoleUser, Content: "hola"},
		{Role: domain.RoleAssistant, Content: "¡Buenas!"},
		{Role: domain.RoleUser, Content: "¿qué hacéis?"},
	}, req.Messages)
	require.Empty(t, waits)
}

func TestComplete_RetriesRateLimitThenSucceeds(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{
		{err: statusErr(http.StatusTooManyRequests)},
		{answer: "listo"},
	}}
	var waits []time.Duration
	c := newTestCompleter(t, llm, CompleterConfig{}, &waits)

	reply, err := c.Complete(context.Background(), nil, "hola")
	require.NoError(t, err)
	require.Equal(t, "listo", reply)
	require.Equal(t, 2, llm.callCount)
	require.Len(t, waits, 1)
}

func TestComplete_ErrorCategories(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category ErrorCode
		status   int
		calls    int
	}{
		{"rate limited", statusErr(http.StatusTooManyRequests), ErrorRateLimited, 429, 3},
		{"unauthorized", statusErr(http.StatusUnauthorized), ErrorAuth, 401, 1},
		{"forbidden", statusErr(http.StatusForbidden), ErrorAuth, 403, 1},
		{"server error", statusErr(http.StatusInternalServerError), ErrorUpstream, 500, 1},
		{"empty reply", openai.ErrNoChoices, ErrorEmptyReply, 0, 1},
		{"deadline", context.DeadlineExceeded, ErrorTimeout, 0, 1},
		{"net timeout", fmt.Errorf("openai: request failed: %w", timeoutErr{}), ErrorTimeout, 0, 1},
		{"transport", errors.New("connection refused"), ErrorUpstream, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &mockLLM{responses: []chatResponse{{err: tc.err}}}
			var waits []time.Duration
			c := newTestCompleter(t, llm, CompleterConfig{}, &waits)

			_, err := c.Complete(context.Background(), nil, "hola")
			var upstreamErr *UpstreamError
			require.ErrorAs(t, err, &upstreamErr)
			require.Equal(t, tc.category, upstreamErr.Category)
			require.Equal(t, tc.status, upstreamErr.Status)
			require.Equal(t, tc.calls, llm.callCount)
		})
	}
}

func TestRespond_ThreeRateLimitsYieldBusyFallback(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: statusErr(http.StatusTooManyRequests)}}}
	var waits []time.Duration
	c := newTestCompleter(t, llm, CompleterConfig{}, &waits)

	out := c.Respond(context.Background(), nil, "hola")
	require.Equal(t, FallbackBusy, out.Text)
	require.NotNil(t, out.Err)
	require.Equal(t, ErrorRateLimited, out.Err.Category)
	require.Equal(t, 3, llm.callCount)
	require.Len(t, waits, 2)
	require.Less(t, waits[0], waits[1])
}

func TestRespond_Fallbacks(t *testing.T) {
	var waits []time.Duration

	c := newTestCompleter(t, &mockLLM{responses: []chatResponse{{err: openai.ErrNoChoices}}}, CompleterConfig{}, &waits)
	require.Equal(t, FallbackEmptyReply, c.Respond(context.Background(), nil, "hola").Text)

	c = newTestCompleter(t, &mockLLM{responses: []chatResponse{{err: statusErr(http.StatusBadGateway)}}}, CompleterConfig{}, &waits)
	require.Equal(t, FallbackUnavailable, c.Respond(context.Background(), nil, "hola").Text)
}

func TestRespond_AppendsCTAOnce(t *testing.T) {
	var waits []time.Duration
	cta := "https://axioma.example/agenda"

	c := newTestCompleter(t, &mockLLM{responses: []chatResponse{{answer: "¡Te ayudo! 🚀"}}}, CompleterConfig{CTAURL: cta}, &waits)
	out := c.Respond(context.Background(), nil, "hola")
	require.Nil(t, out.Err)
	require.Equal(t, "¡Te ayudo! 🚀\n\n👉 "+cta, out.Text)

	c = newTestCompleter(t, &mockLLM{responses: []chatResponse{{answer: "Reserva aquí: " + cta}}}, CompleterConfig{CTAURL: cta}, &waits)
	require.Equal(t, "Reserva aquí: "+cta, c.Respond(context.Background(), nil, "hola").Text)
}

func TestRespond_CancelledDuringBackoff(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: statusErr(http.StatusTooManyRequests)}}}
	policy := retry.Default(nil).WithSleeper(func(context.Context, time.Duration) error {
		return context.Canceled
	})
	c, err := NewCompleter(llm, CompleterConfig{}, policy)
	require.NoError(t, err)

	out := c.Respond(context.Background(), nil, "hola")
	require.Equal(t, 1, llm.callCount)
	require.Equal(t, ErrorRateLimited, out.Err.Category)
}
