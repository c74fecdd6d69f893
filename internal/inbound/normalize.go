package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"axioma-bot/internal/domain"
)

type payload map[string]any

// Normalize turns a loosely shaped webhook body into an InboundEvent.
//
// The platform sends the message either at the top level or nested under a
// "message" object, and identifiers as numbers or strings. Each field is
// resolved through an ordered fallback chain; the first non-empty value wins:
//
//	message:        body.message (object) | body
//	EventType:      body.event
//	MessageID:      message.id | body.message_id | body.id (flat payloads only)
//	ConversationID: body.conversation.id | body.conversation_id | message.conversation_id
//	AccountID:      body.account.id | body.account_id | message.account_id
//	InboxID:        body.inbox.id | body.inbox_id | message.inbox_id
//	MessageType:    message.message_type | body.message_type
//	SenderType:     message.sender_type | message.sender.type | body.sender.type | body.sender_type
//	IsPrivate:      message.private | body.private
//	Text:           message.content | body.content | body.message (string) | body.input | body.text
func Normalize(raw []byte) (domain.InboundEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.InboundEvent{}, errors.New("inbound: empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body payload
	if err := dec.Decode(&body); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("inbound: decode payload: %w", err)
	}
	if body == nil {
		return domain.InboundEvent{}, errors.New("inbound: payload is not an object")
	}
	return normalizePayload(body), nil
}

func normalizePayload(body payload) domain.InboundEvent {
	msg, nested := body.object("message")
	if !nested {
		msg = body
	}

	ev := domain.InboundEvent{
		EventType: firstString(body["event"]),
		ConversationID: firstString(
			body.objectField("conversation", "id"),
			body["conversation_id"],
			msg["conversation_id"],
		),
		AccountID: firstString(
			body.objectField("account", "id"),
			body["account_id"],
			msg["account_id"],
		),
		InboxID: firstString(
			body.objectField("inbox", "id"),
			body["inbox_id"],
			msg["inbox_id"],
		),
	}

	if nested {
		ev.MessageID = firstString(msg["id"], body["message_id"])
	} else {
		ev.MessageID = firstString(body["message_id"], body["id"])
	}

	ev.MessageType = parseMessageType(firstString(msg["message_type"], body["message_type"]))

	senderRaw := firstString(
		msg["sender_type"],
		msg.objectField("sender", "type"),
		body.objectField("sender", "type"),
		body["sender_type"],
	)
	ev.SenderTypePresent = senderRaw != ""
	ev.SenderType = parseSenderType(senderRaw)

	ev.IsPrivate = firstBool(msg["private"], body["private"])

	var bodyMessage any
	if !nested {
		bodyMessage = body["message"]
	}
	ev.Text = firstString(
		msg["content"],
		body["content"],
		bodyMessage,
		body["input"],
		body["text"],
	)
	return ev
}

func parseMessageType(v string) domain.MessageType {
	switch strings.ToLower(v) {
	case "incoming", "0":
		return domain.MessageIncoming
	case "outgoing", "1":
		return domain.MessageOutgoing
	case "activity", "2":
		return domain.MessageActivity
	default:
		return domain.MessageUnknown
	}
}

func parseSenderType(v string) domain.SenderType {
	switch strings.ToLower(strings.ReplaceAll(v, " ", "")) {
	case "":
		return domain.SenderUnknown
	case "contact":
		return domain.SenderContact
	case "user", "agent", "agentbot", "agent_bot", "bot":
		return domain.SenderAgent
	case "system":
		return domain.SenderSystem
	default:
		return domain.SenderUnknown
	}
}

func (p payload) object(key string) (payload, bool) {
	if p == nil {
		return nil, false
	}
	m, ok := p[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return payload(m), true
}

func (p payload) objectField(key, field string) any {
	obj, ok := p.object(key)
	if !ok {
		return nil
	}
	return obj[field]
}

// firstString returns the first value that renders to a non-empty string.
// Numbers keep their literal form so numeric ids compare equal to string ids.
func firstString(values ...any) string {
	for _, v := range values {
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func firstBool(values ...any) bool {
	for _, v := range values {
		switch t := v.(type) {
		case bool:
			return t
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1":
				return true
			case "false", "0":
				return false
			}
		case json.Number:
			return t.String() != "0"
		}
	}
	return false
}
