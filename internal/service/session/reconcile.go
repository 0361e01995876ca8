package session

import (
	"context"
	"fmt"
	"strings"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/service/cursor"
	"ai-chat-transcript-service/internal/service/flatten"
	"ai-chat-transcript-service/internal/service/normalize"
	"ai-chat-transcript-service/internal/service/transport"
)

// Reconciliation outcomes, used as metric labels.
const (
	outcomeAppended  = "appended"
	outcomeSkipped   = "skipped"
	outcomeForeign   = "foreign"
	outcomeMalformed = "malformed"
)

// OnSnapshot reconciles the full current event forest against the active
// instance. Every event past the cursor is reconciled in arrival order.
// Snapshots built before the last conversation switch are dropped.
func (s *Session) OnSnapshot(snap transport.Snapshot) {
	s.metrics.RecordSnapshot()
	flat := flatten.Flatten(snap.Forest, nil)

	s.mu.Lock()
	ctx := s.baseCtx
	inst := s.current
	if snap.Generation != inst.generation {
		logger := inst.log
		s.mu.Unlock()
		s.metrics.RecordStaleSnapshot()
		logger.Debug().
			Uint64("snapshotGeneration", snap.Generation).
			Uint64("generation", inst.generation).
			Msg("dropping snapshot from before the last switch")
		return
	}

	delta, next := cursor.Advance(inst.cursor, len(flat))
	inst.cursor = next
	if delta.Reset {
		s.metrics.RecordCursorReset()
		inst.log.Warn().
			Int("flattened", len(flat)).
			Int("cursor", next.Position()).
			Msg("event stream shrank below cursor, rebasing")
	}

	fresh := delta.Apply(flat)
	if len(fresh) > 0 {
		s.metrics.RecordBurst(len(fresh))
	}

	var notes []Notification
	changed := false
	for _, ev := range fresh {
		outcome, note := s.reconcile(ctx, inst, ev)
		s.metrics.RecordReconciled(outcome)
		if outcome == outcomeAppended {
			changed = true
		}
		if note != nil {
			notes = append(notes, *note)
		}
	}

	var entries []models.TranscriptEntry
	if changed {
		entries = inst.transcript.Entries()
	}
	effects := inst.effects.take()
	sessionID := inst.id
	if effects.boundID != "" {
		inst.log = inst.log.With().Str("conversationId", effects.boundID).Logger()
	}
	logger := inst.log
	s.mu.Unlock()

	if effects.boundID != "" {
		s.display.ConversationBound(sessionID, effects.boundID)
	}
	if effects.refresh {
		if err := s.RefreshConversations(ctx); err != nil {
			logger.Warn().Err(err).Msg("conversation list refresh after binding failed")
		}
	}
	if changed {
		s.display.TranscriptUpdated(sessionID, entries)
	}
	for _, n := range notes {
		s.display.Notify(n)
	}
}

// reconcile handles one new event. Called with s.mu held.
func (s *Session) reconcile(ctx context.Context, inst *instance, ev models.StepEvent) (string, *Notification) {
	// user entries are appended optimistically on submit
	if !normalize.IsAssistant(ev) {
		return outcomeSkipped, nil
	}

	bound, _ := inst.router.Route(ctx, ev)
	if bound {
		s.metrics.RecordBinding()
		inst.log.Info().
			Str("conversationId", inst.tracker.ConversationID()).
			Str("eventId", ev.ID).
			Msg("session bound to conversation")
	}

	eventConv := strings.TrimSpace(ev.Metadata.ConversationID)
	if !inst.tracker.IsBound() {
		// a New session only accepts the reply that binds it
		inst.log.Debug().Str("eventId", ev.ID).Msg("assistant event without conversation id in new session, skipping")
		return outcomeForeign, nil
	}
	if eventConv != "" && eventConv != inst.tracker.ConversationID() {
		inst.log.Debug().
			Str("eventId", ev.ID).
			Str("eventConversationId", eventConv).
			Msg("assistant event belongs to another conversation, skipping")
		return outcomeForeign, nil
	}

	// the reply arrived even if it cannot be shown
	inst.awaiting = false

	entry, err := normalize.Assistant(ev)
	if err != nil {
		s.metrics.RecordMalformed()
		inst.log.Warn().Err(err).Str("eventId", ev.ID).Msg("dropping malformed assistant payload")
		return outcomeMalformed, &Notification{
			Level:   LevelWarning,
			Kind:    KindMalformedPayload,
			Message: fmt.Sprintf("an assistant reply could not be displayed: %v", err),
		}
	}

	inst.transcript.Append(entry)
	s.metrics.RecordEntryAppended(models.EntryKind(entry))
	return outcomeAppended, nil
}

// OnTransportError surfaces a subscription failure.
func (s *Session) OnTransportError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	logger := s.current.log
	s.mu.Unlock()

	logger.Error().Err(err).Msg("transport delivery failure")
	s.display.Notify(Notification{
		Level:   LevelError,
		Kind:    KindTransportDelivery,
		Message: fmt.Sprintf("real-time session error: %v", err),
	})
}
