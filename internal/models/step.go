// Package models defines the data structures exchanged with the messaging
// transport and the transcript entries shown to the user.
package models

// StepEvent is one node of a messaging session's event tree. The JSON tags
// follow the transport wire format.
type StepEvent struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Output    string      `json:"output"`
	CreatedAt string      `json:"createdAt"`
	Metadata  Metadata    `json:"metadata"`
	Steps     []StepEvent `json:"steps,omitempty"`
}

// Metadata carries the routing and shape hints attached to a StepEvent.
type Metadata struct {
	ConversationID string `json:"conversation_id,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	Model          string `json:"model,omitempty"`
}

// Well-known step types and role names.
const (
	TypeUserMessage      = "user_message"
	TypeAssistantMessage = "assistant_message"

	RoleUser      = "user"
	RoleAssistant = "Assistant"
)

// ModelResponse is one model's answer within an assistant turn. The
// assistant output is a JSON array of these: [{"model": ..., "text": ...}].
type ModelResponse struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// HistoryMessage is one message of a stored conversation turn.
type HistoryMessage struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// HistoryRow is one stored conversation turn as returned by the history API.
// Two messages denote a dual-model assistant turn.
type HistoryRow struct {
	Role     string           `json:"role"`
	Messages []HistoryMessage `json:"messages"`
}

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID      string `json:"id_conv"`
	Content string `json:"content"`
}
