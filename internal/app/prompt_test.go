package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus/internal/model"
)

func TestBuildPromptMessagesWithContext(t *testing.T) {
	retrieved := []RetrievedChunk{
		{Filename: "guide.md", Text: "install with make", Distance: 0.1},
		{Filename: "faq.md", Text: "restart the daemon", Distance: 0.2},
	}
	history := []model.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	messages := BuildPromptMessages("answer from documents only", true, retrieved, history, "how do I install?", 800)

	require.Len(t, messages, 5)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "answer from documents only", messages[0].Content)
	assert.Equal(t, "system", messages[1].Role)
	assert.Contains(t, messages[1].Content, "--- Retrieved documents:")
	assert.Contains(t, messages[1].Content, "[Source: guide.md]\ninstall with make")
	assert.Contains(t, messages[1].Content, "[Source: faq.md]\nrestart the daemon")
	assert.Equal(t, "user", messages[2].Role)
	assert.Equal(t, "assistant", messages[3].Role)
	assert.Equal(t, "user", messages[4].Role)
	assert.Equal(t, "how do I install?", messages[4].Content)
}

func TestBuildPromptMessagesWithoutContext(t *testing.T) {
	history := []model.ChatMessage{{Role: "user", Content: "earlier"}}

	messages := BuildPromptMessages("instruction", true, nil, history, "next question", 800)

	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "earlier", messages[0].Content)
	assert.Equal(t, "next question", messages[1].Content)
}

func TestBuildPromptMessagesTruncatesSnippets(t *testing.T) {
	retrieved := []RetrievedChunk{{Filename: "big.md", Text: strings.Repeat("好", 1000)}}

	messages := BuildPromptMessages("instruction", true, retrieved, nil, "q", 800)

	context := messages[1].Content
	assert.Contains(t, context, strings.Repeat("好", 800))
	assert.NotContains(t, context, strings.Repeat("好", 801))
}

func TestBuildPromptMessagesNonStrictKeepsContextOnly(t *testing.T) {
	retrieved := []RetrievedChunk{{Filename: "guide.md", Text: "snippet"}}

	messages := BuildPromptMessages("instruction", false, retrieved, nil, "q", 800)

	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.NotContains(t, messages[0].Content, "instruction")
	assert.Contains(t, messages[0].Content, "[Source: guide.md]")
	assert.Equal(t, "user", messages[1].Role)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "héllo", truncateRunes("héllo", 0))
}
