package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-chat-transcript-service/internal/models"
)

func assistantEvent(output, messageType string) models.StepEvent {
	return models.StepEvent{
		ID:     "step-1",
		Name:   models.RoleAssistant,
		Type:   models.TypeAssistantMessage,
		Output: output,
		Metadata: models.Metadata{
			ConversationID: "abc123",
			MessageType:    messageType,
		},
	}
}

func TestAssistant_Single(t *testing.T) {
	entry, err := Assistant(assistantEvent(`[{"model":"gemini","text":"hi"}]`, "single"))
	require.NoError(t, err)
	assert.Equal(t, models.AssistantSingleEntry{Text: "hi"}, entry)
}

func TestAssistant_MultiplePreservesOrder(t *testing.T) {
	entry, err := Assistant(assistantEvent(`[{"model":"gemini","text":"a"},{"model":"ollama","text":"b"}]`, "multiple"))
	require.NoError(t, err)

	multi, ok := entry.(models.AssistantMultiEntry)
	require.True(t, ok, "expected AssistantMultiEntry, got %T", entry)
	assert.Equal(t, []models.ModelResponse{
		{Model: "gemini", Text: "a"},
		{Model: "ollama", Text: "b"},
	}, multi.Responses)
}

func TestAssistant_IndentedPayload(t *testing.T) {
	output := "[\n  {\n    \"model\": \"llama3.2:latest\",\n    \"text\": \"xin chào\"\n  }\n]"
	entry, err := Assistant(assistantEvent(output, "single"))
	require.NoError(t, err)
	assert.Equal(t, models.AssistantSingleEntry{Text: "xin chào"}, entry)
}

func TestAssistant_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		messageType string
	}{
		{"not json", "{not json", "single"},
		{"object instead of array", `{"model":"gemini","text":"hi"}`, "single"},
		{"empty single", `[]`, "single"},
		{"missing text", `[{"model":"gemini"}]`, "multiple"},
		{"non-object item", `["hi"]`, "multiple"},
		{"unknown message type", `[{"model":"gemini","text":"hi"}]`, "triple"},
		{"missing message type", `[{"model":"gemini","text":"hi"}]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := Assistant(assistantEvent(tt.output, tt.messageType))
			require.Error(t, err)
			assert.Nil(t, entry)
			assert.True(t, errors.Is(err, ErrMalformedAssistantPayload), "got %v", err)
		})
	}
}

func TestAssistant_EmptyMultipleIsMalformed(t *testing.T) {
	for _, output := range []string{`[]`, `null`} {
		entry, err := Assistant(assistantEvent(output, "multiple"))
		assert.ErrorIs(t, err, ErrMalformedAssistantPayload, output)
		assert.Nil(t, entry, output)
	}
}

func TestIsAssistant(t *testing.T) {
	assert.True(t, IsAssistant(models.StepEvent{Name: "Assistant"}))
	assert.True(t, IsAssistant(models.StepEvent{Name: "assistant"}))
	assert.False(t, IsAssistant(models.StepEvent{Name: "user"}))
	assert.False(t, IsAssistant(models.StepEvent{Name: ""}))
}

func TestHistory(t *testing.T) {
	rows := []models.HistoryRow{
		{Role: "user", Messages: []models.HistoryMessage{{Text: "question", Model: "gemini-2.0-flash"}}},
		{Role: "assistant", Messages: []models.HistoryMessage{
			{Text: "a", Model: "gemini-2.0-flash"},
			{Text: "b", Model: "llama3.2:latest"},
		}},
		{Role: "assistant", Messages: []models.HistoryMessage{{Text: "only one", Model: "gemini-2.0-flash"}}},
		{Role: "system", Messages: []models.HistoryMessage{{Text: "treated as assistant"}}},
		{Role: "assistant"},
	}

	got := History(rows)

	require.Len(t, got, 4)
	assert.Equal(t, models.UserEntry{Text: "question"}, got[0])
	assert.Equal(t, models.AssistantMultiEntry{Responses: []models.ModelResponse{
		{Model: "gemini-2.0-flash", Text: "a"},
		{Model: "llama3.2:latest", Text: "b"},
	}}, got[1])
	assert.Equal(t, models.AssistantSingleEntry{Text: "only one"}, got[2])
	assert.Equal(t, models.AssistantSingleEntry{Text: "treated as assistant"}, got[3])
}

// A two-message row is always a dual-model turn, even if the role says user.
func TestHistory_TwoMessagesAlwaysMulti(t *testing.T) {
	got := History([]models.HistoryRow{{Role: "user", Messages: []models.HistoryMessage{{Text: "x"}, {Text: "y"}}}})
	require.Len(t, got, 1)
	_, ok := got[0].(models.AssistantMultiEntry)
	assert.True(t, ok)
}
