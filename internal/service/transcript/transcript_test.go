package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-chat-transcript-service/internal/models"
)

func TestTranscript_AppendKeepsOrder(t *testing.T) {
	tr := New()
	tr.Append(models.UserEntry{Text: "q"})
	tr.Append(models.AssistantSingleEntry{Text: "a"})
	tr.Append(nil)

	require.Equal(t, 2, tr.Len())
	assert.Equal(t, []models.TranscriptEntry{
		models.UserEntry{Text: "q"},
		models.AssistantSingleEntry{Text: "a"},
	}, tr.Entries())
}

func TestTranscript_EntriesIsACopy(t *testing.T) {
	tr := New()
	tr.Append(models.UserEntry{Text: "q"})

	view := tr.Entries()
	view[0] = models.UserEntry{Text: "changed"}

	assert.Equal(t, models.UserEntry{Text: "q"}, tr.Entries()[0])
}

func TestFromHistory(t *testing.T) {
	history := []models.TranscriptEntry{models.UserEntry{Text: "old"}}
	tr := FromHistory(history)
	history[0] = models.UserEntry{Text: "mutated"}

	tr.Append(models.AssistantSingleEntry{Text: "new"})
	assert.Equal(t, []models.TranscriptEntry{
		models.UserEntry{Text: "old"},
		models.AssistantSingleEntry{Text: "new"},
	}, tr.Entries())
}
