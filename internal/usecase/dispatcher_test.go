package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/integrations/chatwoot"
)

type postedMessage struct {
	accountID      string
	conversationID string
	content        string
	ctxErr         error
}

type mockPoster struct {
	posts []postedMessage
	err   error
}

func (m *mockPoster) PostMessage(ctx context.Context, accountID, conversationID, content string) (chatwoot.Message, error) {
	m.posts = append(m.posts, postedMessage{accountID, conversationID, content, ctx.Err()})
	if m.err != nil {
		return chatwoot.Message{}, m.err
	}
	return chatwoot.Message{ID: int64(len(m.posts)), Content: content}, nil
}

func TestParseDispatchMode(t *testing.T) {
	for in, want := range map[string]DispatchMode{
		"":       DispatchInline,
		"inline": DispatchInline,
		" API ":  DispatchAPI,
		"both":   DispatchBoth,
	} {
		got, err := ParseDispatchMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseDispatchMode("webhook")
	require.Error(t, err)
}

func TestDispatchMode_Sinks(t *testing.T) {
	require.True(t, DispatchInline.Inline())
	require.False(t, DispatchInline.Publishes())
	require.False(t, DispatchAPI.Inline())
	require.True(t, DispatchAPI.Publishes())
	require.True(t, DispatchBoth.Inline())
	require.True(t, DispatchBoth.Publishes())
}

func TestPublish_InlineModeNeverPosts(t *testing.T) {
	poster := &mockPoster{}
	d := NewDispatcher(DispatchInline, poster)
	require.False(t, d.Publish(context.Background(), domain.InboundEvent{AccountID: "1", ConversationID: "2"}, "hola"))
	require.Empty(t, poster.posts)
}

func TestPublish_PostsToConversation(t *testing.T) {
	poster := &mockPoster{}
	d := NewDispatcher(DispatchBoth, poster)
	ok := d.Publish(context.Background(), domain.InboundEvent{AccountID: "1", ConversationID: "42"}, "¡Hola!")
	require.True(t, ok)
	require.Equal(t, []postedMessage{{accountID: "1", conversationID: "42", content: "¡Hola!"}}, poster.posts)
}

func TestPublish_MissingIDsSkipsPost(t *testing.T) {
	poster := &mockPoster{}
	d := NewDispatcher(DispatchAPI, poster)
	require.False(t, d.Publish(context.Background(), domain.InboundEvent{ConversationID: "42"}, "hola"))
	require.False(t, d.Publish(context.Background(), domain.InboundEvent{AccountID: "1"}, "hola"))
	require.Empty(t, poster.posts)
}

func TestPublish_FailureIsSwallowed(t *testing.T) {
	poster := &mockPoster{err: errors.New("chatwoot: unexpected status 500")}
	d := NewDispatcher(DispatchAPI, poster)
	require.False(t, d.Publish(context.Background(), domain.InboundEvent{AccountID: "1", ConversationID: "42"}, "hola"))
	require.Len(t, poster.posts, 1)
}

func TestPublish_NilPoster(t *testing.T) {
	d := NewDispatcher(DispatchAPI, nil)
	require.False(t, d.Publish(context.Background(), domain.InboundEvent{AccountID: "1", ConversationID: "42"}, "hola"))
}

func TestPublish_SurvivesCallerCancellation(t *testing.T) {
	poster := &mockPoster{}
	d := NewDispatcher(DispatchAPI, poster)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, d.Publish(ctx, domain.InboundEvent{AccountID: "1", ConversationID: "42"}, "hola"))
	require.NoError(t, poster.posts[0].ctxErr)
}
