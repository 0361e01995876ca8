package models

import (
	"fmt"
	"strings"
)

// MessageType is the shape of an assistant payload.
type MessageType int

const (
	MessageTypeSingle MessageType = iota + 1
	MessageTypeMultiple
)

// String returns the wire value of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageTypeSingle:
		return "single"
	case MessageTypeMultiple:
		return "multiple"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ParseMessageType maps the wire value onto a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	switch strings.TrimSpace(s) {
	case "single":
		return MessageTypeSingle, nil
	case "multiple":
		return MessageTypeMultiple, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}

// TranscriptEntry is one line of the transcript. The set of implementations
// is closed: UserEntry, AssistantSingleEntry and AssistantMultiEntry.
type TranscriptEntry interface {
	transcriptEntry()
}

// UserEntry is a message typed by the user.
type UserEntry struct {
	Text string
}

// AssistantSingleEntry is an answer from a single model.
type AssistantSingleEntry struct {
	Text string
}

// AssistantMultiEntry holds the answers of several models, in the order the
// payload listed them.
type AssistantMultiEntry struct {
	Responses []ModelResponse
}

func (UserEntry) transcriptEntry()            {}
func (AssistantSingleEntry) transcriptEntry() {}
func (AssistantMultiEntry) transcriptEntry()  {}

// Entry kinds used by views.
const (
	KindUser           = "user"
	KindAssistant      = "assistant"
	KindAssistantMulti = "assistant_multi"
)

// EntryKind returns the view kind of an entry.
func EntryKind(e TranscriptEntry) string {
	switch e.(type) {
	case UserEntry:
		return KindUser
	case AssistantSingleEntry:
		return KindAssistant
	case AssistantMultiEntry:
		return KindAssistantMulti
	default:
		return ""
	}
}

// EntryView is the JSON rendering of a transcript entry.
type EntryView struct {
	Kind      string          `json:"kind"`
	Role      string          `json:"role"`
	Text      string          `json:"text,omitempty"`
	Responses []ModelResponse `json:"modelResponses,omitempty"`
}

// View renders an entry for the display layer.
func View(e TranscriptEntry) EntryView {
	switch v := e.(type) {
	case UserEntry:
		return EntryView{Kind: KindUser, Role: "user", Text: v.Text}
	case AssistantSingleEntry:
		return EntryView{Kind: KindAssistant, Role: "assistant", Text: v.Text}
	case AssistantMultiEntry:
		responses := make([]ModelResponse, len(v.Responses))
		copy(responses, v.Responses)
		return EntryView{Kind: KindAssistantMulti, Role: "assistant", Responses: responses}
	default:
		return EntryView{}
	}
}

// Views renders a list of entries.
func Views(entries []TranscriptEntry) []EntryView {
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, View(e))
	}
	return out
}
