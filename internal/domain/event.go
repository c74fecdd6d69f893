package domain

// MessageType is the normalized direction/kind of a platform message.
type MessageType string

const (
	MessageIncoming MessageType = "incoming"
	MessageOutgoing MessageType = "outgoing"
	MessageActivity MessageType = "activity"
	MessageUnknown  MessageType = "unknown"
)

// SenderType is the normalized author category of a platform message.
type SenderType string

const (
	SenderContact SenderType = "contact"
	SenderAgent   SenderType = "agent"
	SenderSystem  SenderType = "system"
	SenderUnknown SenderType = "unknown"
)

// EventMessageCreated is the only webhook event tag the relay acts on.
const EventMessageCreated = "message_created"

// InboundEvent is the typed view of one webhook call. It is built fresh for
// every request and never persisted.
type InboundEvent struct {
	// EventType is empty when the payload carries no event tag.
	EventType      string
	MessageID      string
	ConversationID string
	AccountID      string
	InboxID        string
	MessageType    MessageType
	SenderType     SenderType
	// SenderTypePresent reports whether the payload carried any sender-type
	// metadata at all.
	SenderTypePresent bool
	IsPrivate         bool
	Text              string
}
