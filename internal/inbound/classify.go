package inbound

import (
	"strings"

	"axioma-bot/internal/domain"
)

// Skip reasons reported when an event is not actionable.
const (
	ReasonEventNotMessageCreated = "event_not_message_created"
	ReasonActivityMessage        = "activity_message"
	ReasonNotIncoming            = "not_incoming"
	ReasonSenderNotContact       = "sender_not_contact"
	ReasonPrivateMessage         = "private_message"
	ReasonInboxNotAllowed        = "inbox_not_allowed"
)

// Decision is the outcome of classifying one inbound event.
type Decision struct {
	ShouldRespond bool
	Reason        string
}

// Classifier decides whether an inbound event is a real customer message the
// bot should answer. Its main job is keeping the bot from replying to its own
// outgoing messages, to agents, or to private notes.
type Classifier struct {
	allowedInboxes map[string]struct{}
}

// NewClassifier builds a Classifier. An empty allow-list accepts every inbox.
func NewClassifier(allowedInboxIDs []string) *Classifier {
	c := &Classifier{}
	for _, id := range allowedInboxIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if c.allowedInboxes == nil {
			c.allowedInboxes = make(map[string]struct{})
		}
		c.allowedInboxes[id] = struct{}{}
	}
	return c
}

// Classify applies the rules in order and stops at the first violation.
func (c *Classifier) Classify(ev domain.InboundEvent) Decision {
	if ev.EventType != "" && ev.EventType != domain.EventMessageCreated {
		return skip(ReasonEventNotMessageCreated)
	}
	if ev.MessageType == domain.MessageActivity {
		return skip(ReasonActivityMessage)
	}
	if ev.MessageType != domain.MessageIncoming {
		return skip(ReasonNotIncoming)
	}
	if !isContact(ev) {
		return skip(ReasonSenderNotContact)
	}
	if ev.IsPrivate {
		return skip(ReasonPrivateMessage)
	}
	if len(c.allowedInboxes) > 0 {
		if _, ok := c.allowedInboxes[ev.InboxID]; !ok {
			return skip(ReasonInboxNotAllowed)
		}
	}
	return Decision{ShouldRespond: true}
}

// isContact treats an incoming message without any sender-type metadata as
// authored by the contact. Present but unrecognized sender types are rejected.
func isContact(ev domain.InboundEvent) bool {
	if ev.SenderType == domain.SenderContact {
		return true
	}
	return !ev.SenderTypePresent && ev.MessageType == domain.MessageIncoming
}

func skip(reason string) Decision {
	return Decision{Reason: reason}
}
