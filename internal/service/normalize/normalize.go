// Package normalize turns assistant payloads and stored history rows into
// transcript entries.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"ai-chat-transcript-service/internal/models"
)

// ErrMalformedAssistantPayload is returned when an assistant event cannot be
// turned into a transcript entry. The event is dropped, never coerced.
var ErrMalformedAssistantPayload = errors.New("malformed assistant payload")

// IsAssistant reports whether ev was emitted by the assistant role.
func IsAssistant(ev models.StepEvent) bool {
	return strings.EqualFold(strings.TrimSpace(ev.Name), "assistant")
}

// Assistant parses the JSON array carried in ev.Output and reshapes it
// according to ev.Metadata.MessageType.
func Assistant(ev models.StepEvent) (models.TranscriptEntry, error) {
	mt, err := models.ParseMessageType(ev.Metadata.MessageType)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedAssistantPayload, "event %s: %v", ev.ID, err)
	}

	responses, err := decodeResponses(ev.Output)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedAssistantPayload, "event %s: %v", ev.ID, err)
	}

	switch mt {
	case models.MessageTypeSingle:
		if len(responses) == 0 {
			return nil, errors.Wrapf(ErrMalformedAssistantPayload, "event %s: single payload has no response", ev.ID)
		}
		return models.AssistantSingleEntry{Text: responses[0].Text}, nil
	case models.MessageTypeMultiple:
		if len(responses) == 0 {
			return nil, errors.Wrapf(ErrMalformedAssistantPayload, "event %s: multiple payload has no response", ev.ID)
		}
		return models.AssistantMultiEntry{Responses: responses}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedAssistantPayload, "event %s: unhandled message type %s", ev.ID, mt)
	}
}

func decodeResponses(output string) ([]models.ModelResponse, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return nil, errors.Wrap(err, "decode output")
	}
	responses := make([]models.ModelResponse, 0, len(raw))
	for i, item := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, errors.Wrapf(err, "response %d", i)
		}
		if _, ok := fields["text"]; !ok {
			return nil, errors.Errorf("response %d has no text", i)
		}
		var r models.ModelResponse
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, errors.Wrapf(err, "response %d", i)
		}
		responses = append(responses, r)
	}
	return responses, nil
}

// History converts stored conversation rows into transcript entries. A row
// with exactly two messages is a dual-model assistant turn; any other
// non-empty row is a single-role turn whose role picks user or assistant.
// Rows without messages are skipped.
func History(rows []models.HistoryRow) []models.TranscriptEntry {
	entries := make([]models.TranscriptEntry, 0, len(rows))
	for _, row := range rows {
		switch {
		case len(row.Messages) == 2:
			responses := make([]models.ModelResponse, 0, 2)
			for _, m := range row.Messages {
				responses = append(responses, models.ModelResponse{Model: m.Model, Text: m.Text})
			}
			entries = append(entries, models.AssistantMultiEntry{Responses: responses})
		case len(row.Messages) == 0:
			continue
		case row.Role == "user":
			entries = append(entries, models.UserEntry{Text: row.Messages[0].Text})
		default:
			entries = append(entries, models.AssistantSingleEntry{Text: row.Messages[0].Text})
		}
	}
	return entries
}
