// Package transcript holds the ordered, append-only list of entries shown for
// one conversation session.
package transcript

import (
	"sync"

	"ai-chat-transcript-service/internal/models"
)

// Transcript is append-only. Entries keep the order in which they were
// appended.
type Transcript struct {
	mu      sync.RWMutex
	entries []models.TranscriptEntry
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// FromHistory creates a transcript seeded with entries loaded from storage.
func FromHistory(entries []models.TranscriptEntry) *Transcript {
	t := &Transcript{entries: make([]models.TranscriptEntry, len(entries))}
	copy(t.entries, entries)
	return t
}

// Append adds an entry at the end. Nil entries are ignored.
func (t *Transcript) Append(entry models.TranscriptEntry) {
	if entry == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a copy of the entries; callers cannot modify the transcript
// through it.
func (t *Transcript) Entries() []models.TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
