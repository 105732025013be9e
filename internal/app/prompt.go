package app

import (
	"strings"

	"nimbus/internal/ai"
	"nimbus/internal/model"
)

const retrievedContextHeader = "\n\n--- Retrieved documents:\n"

// BuildPromptMessages assembles the upstream message list. When chunks
// were retrieved, the document context leads the conversation, preceded
// in strict mode by the grounding instruction so the model answers from
// the documents only; the prior history follows, and the user's message
// always comes last. Without retrieved chunks no system messages are
// emitted at all.
func BuildPromptMessages(
	strictInstruction string,
	strict bool,
	retrieved []RetrievedChunk,
	history []model.ChatMessage,
	userMessage string,
	snippetMaxChars int,
) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(history)+3)

	if len(retrieved) > 0 {
		if strict {
			messages = append(messages, ai.ChatMessage{Role: "system", Content: strictInstruction})
		}
		messages = append(messages, ai.ChatMessage{
			Role:    "system",
			Content: formatRetrievedContext(retrieved, snippetMaxChars),
		})
	}

	for _, msg := range history {
		messages = append(messages, ai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	return append(messages, ai.ChatMessage{Role: "user", Content: userMessage})
}

func formatRetrievedContext(retrieved []RetrievedChunk, snippetMaxChars int) string {
	var b strings.Builder
	b.WriteString(retrievedContextHeader)
	for _, chunk := range retrieved {
		b.WriteString("[Source: ")
		b.WriteString(chunk.Filename)
		b.WriteString("]\n")
		b.WriteString(truncateRunes(chunk.Text, snippetMaxChars))
		b.WriteString("\n\n")
	}
	return b.String()
}

// truncateRunes shortens text to at most max runes, never splitting a
// multi-byte character.
func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
