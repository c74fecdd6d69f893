package usecase

import (
	"context"
	"errors"

	"axioma-bot/internal/domain"
	"axioma-bot/internal/inbound"
	"axioma-bot/internal/logging"
)

type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeDeduped OutcomeKind = "deduped"
	OutcomeReplied OutcomeKind = "replied"
)

type ReplySource string

const (
	SourcePrompt     ReplySource = "prompt"
	SourceShortcut   ReplySource = "shortcut"
	SourceCompletion ReplySource = "completion"
	SourceFallback   ReplySource = "fallback"
)

// Outcome describes what the relay did with one webhook event.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Reply  string
	Source ReplySource
	// Inline is set when Reply belongs in the webhook response body.
	Inline bool
	Posted bool
}

type EventClassifier interface {
	Classify(ev domain.InboundEvent) inbound.Decision
}

type ConversationMemory interface {
	IsDuplicate(messageID string) bool
	RecordTurn(conversationID, role, text string)
	History(conversationID string) []domain.Turn
}

type ShortcutMatcher interface {
	Match(text string) (string, bool)
}

type Responder interface {
	Respond(ctx context.Context, history []domain.Turn, userText string) Reply
}

// RelayService turns an inbound event into at most one reply.
type RelayService struct {
	classifier EventClassifier
	memory     ConversationMemory
	shortcuts  ShortcutMatcher
	responder  Responder
	dispatcher *Dispatcher
	ctaURL     string
}

type RelayOption func(*RelayService)

// WithShortcuts enables canned replies. Without it every message goes to the
// completion API.
func WithShortcuts(m ShortcutMatcher) RelayOption {
	return func(s *RelayService) {
		s.shortcuts = m
	}
}

// WithCTA sets the link appended to shortcut replies.
func WithCTA(url string) RelayOption {
	return func(s *RelayService) {
		s.ctaURL = url
	}
}

func NewRelayService(c EventClassifier, m ConversationMemory, r Responder, d *Dispatcher, opts ...RelayOption) (*RelayService, error) {
	if c == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: memory store must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	s := &RelayService{classifier: c, memory: m, responder: r, dispatcher: d}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RelayService) DispatchMode() DispatchMode {
	return s.dispatcher.Mode()
}

// Handle runs one normalized event through classification, dedup, shortcuts
// and completion, then dispatches the reply.
func (s *RelayService) Handle(ctx context.Context, ev domain.InboundEvent) Outcome {
	logger := logging.FromContext(ctx).With("message_id", ev.MessageID, "conversation_id", ev.ConversationID)

	decision := s.classifier.Classify(ev)
	if !decision.ShouldRespond {
		logger.Info("event skipped", "reason", decision.Reason)
		return Outcome{Kind: OutcomeSkipped, Reason: decision.Reason}
	}
	if s.memory.IsDuplicate(ev.MessageID) {
		logger.Info("duplicate delivery ignored")
		return Outcome{Kind: OutcomeDeduped}
	}

	ctx = logging.WithLogger(ctx, logger)
	if ev.Text == "" {
		return s.dispatch(ctx, ev, PromptForText, SourcePrompt)
	}

	if s.shortcuts != nil {
		if reply, ok := s.shortcuts.Match(ev.Text); ok {
			reply = withCTA(reply, s.ctaURL)
			s.remember(ev, reply)
			logger.Info("answered from shortcut")
			return s.dispatch(ctx, ev, reply, SourceShortcut)
		}
	}

	out := s.responder.Respond(ctx, s.memory.History(ev.ConversationID), ev.Text)
	if out.Err != nil {
		return s.dispatch(ctx, ev, out.Text, SourceFallback)
	}
	s.remember(ev, out.Text)
	return s.dispatch(ctx, ev, out.Text, SourceCompletion)
}

// Malformed is the outcome for a body that could not be parsed: the sender is
// asked to repeat, inline only, since there is no conversation to post to.
func (s *RelayService) Malformed() Outcome {
	return Outcome{Kind: OutcomeReplied, Reply: PromptForText, Source: SourcePrompt, Inline: true}
}

func (s *RelayService) remember(ev domain.InboundEvent, reply string) {
	s.memory.RecordTurn(ev.ConversationID, domain.RoleUser, ev.Text)
	s.memory.RecordTurn(ev.ConversationID, domain.RoleAssistant, reply)
}

func (s *RelayService) dispatch(ctx context.Context, ev domain.InboundEvent, reply string, source ReplySource) Outcome {
	mode := s.dispatcher.Mode()
	return Outcome{
		Kind:   OutcomeReplied,
		Reply:  reply,
		Source: source,
		Inline: mode.Inline(),
		Posted: s.dispatcher.Publish(ctx, ev, reply),
	}
}
