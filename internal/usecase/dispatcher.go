package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/integrations/chatwoot"
	"axioma-bot/internal/logging"
)

type DispatchMode string

const (
	DispatchInline DispatchMode = "inline"
	DispatchAPI    DispatchMode = "api"
	DispatchBoth   DispatchMode = "both"
)

const defaultPostTimeout = 15 * time.Second

func ParseDispatchMode(v string) (DispatchMode, error) {
	switch mode := DispatchMode(strings.ToLower(strings.TrimSpace(v))); mode {
	case "":
		return DispatchInline, nil
	case DispatchInline, DispatchAPI, DispatchBoth:
		return mode, nil
	default:
		return "", fmt.Errorf("usecase: unknown dispatch mode %q", v)
	}
}

// Inline reports whether the reply goes back in the webhook response body.
func (m DispatchMode) Inline() bool {
	return m == DispatchInline || m == DispatchBoth
}

// Publishes reports whether the reply is posted through the platform API.
func (m DispatchMode) Publishes() bool {
	return m == DispatchAPI || m == DispatchBoth
}

type MessagePoster interface {
	PostMessage(ctx context.Context, accountID, conversationID, content string) (chatwoot.Message, error)
}

// Dispatcher posts replies into the platform conversation. Posting is best
// effort: failures are logged and never retried.
type Dispatcher struct {
	mode        DispatchMode
	poster      MessagePoster
	postTimeout time.Duration
}

// NewDispatcher returns a Dispatcher. poster may be nil when the platform is
// not configured; publishing then logs and does nothing.
func NewDispatcher(mode DispatchMode, poster MessagePoster) *Dispatcher {
	if mode == "" {
		mode = DispatchInline
	}
	return &Dispatcher{mode: mode, poster: poster, postTimeout: defaultPostTimeout}
}

func (d *Dispatcher) Mode() DispatchMode {
	return d.mode
}

// Publish posts reply into the event's conversation and reports whether the
// platform accepted it.
func (d *Dispatcher) Publish(ctx context.Context, ev domain.InboundEvent, reply string) bool {
	if !d.mode.Publishes() {
		return false
	}
	logger := logging.FromContext(ctx).With("conversation_id", ev.ConversationID, "account_id", ev.AccountID)
	if d.poster == nil {
		logger.Warn("platform not configured; reply not posted")
		return false
	}
	if ev.AccountID == "" || ev.ConversationID == "" {
		logger.Warn("missing account or conversation id; reply not posted")
		return false
	}

	// The post must outlive a webhook caller that hangs up early.
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.postTimeout)
	defer cancel()

	msg, err := d.poster.PostMessage(postCtx, ev.AccountID, ev.ConversationID, reply)
	if err != nil {
		logger.Error("failed to post reply", "err", err)
		return false
	}
	logger.Info("reply posted", "platform_message_id", msg.ID)
	return true
}
