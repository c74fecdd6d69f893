package usecase

import (
	"strings"

	"axioma-bot/internal/domain"
)

// Persona is the default system prompt.
const Persona = "Eres un asistente alegre y amigable de Axioma Creativa. " +
	"Hablas con emojis, frases cortas y un tono cercano. " +
	"Tu objetivo es atraer clientes, generar interés y destacar beneficios de servicios creativos (web, contenido, IA). " +
	"Invita a aprovechar descuentos de lanzamiento cuando encaje."

// Reply copy used when no generated answer is available.
const (
	PromptForText       = "❗️ No recibí ningún mensaje. ¿Puedes escribirlo de nuevo?"
	FallbackEmptyReply  = "🤖 Estoy aquí, pero no pude generar respuesta. ¿Puedes preguntarme otra vez?"
	FallbackUnavailable = "😔 Ahora mismo no puedo responder. ¿Intentamos más tarde?"
	FallbackBusy        = "⏳ Estoy atendiendo muchas consultas ahora mismo. ¿Me escribes de nuevo en un minuto?"
)

func buildPromptMessages(systemPrompt string, history []domain.Turn, userText string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		messages = append(messages, t.ChatMessage())
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userText})
}

func fallbackFor(err *UpstreamError) string {
	switch err.Category {
	case ErrorRateLimited:
		return FallbackBusy
	case ErrorEmptyReply:
		return FallbackEmptyReply
	default:
		return FallbackUnavailable
	}
}

// withCTA appends the call-to-action link unless the reply already has it.
func withCTA(reply, ctaURL string) string {
	ctaURL = strings.TrimSpace(ctaURL)
	if ctaURL == "" || strings.Contains(reply, ctaURL) {
		return reply
	}
	return reply + "\n\n👉 " + ctaURL
}
