package domain

import "time"

// Turn is a single remembered exchange entry for a conversation.
type Turn struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// ChatMessage converts the turn into a prompt message.
func (t Turn) ChatMessage() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Text}
}
