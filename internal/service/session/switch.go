package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/service/identity"
	"ai-chat-transcript-service/internal/service/normalize"
)

// StartNew switches to a fresh New instance.
func (s *Session) StartNew(ctx context.Context) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	gen := s.resetTransport(ctx)
	s.install(identity.NewTracker(), nil, gen)
	s.metrics.RecordSessionSwitch("new")
}

// Open switches to an existing conversation and loads its history. On a
// history failure the switch still happens with an empty transcript and
// ErrHistoryFetch is returned. An empty id is the same as StartNew.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		s.StartNew(ctx)
		return nil
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	gen := s.resetTransport(ctx)

	var (
		entries  []models.TranscriptEntry
		fetchErr error
	)
	if s.api != nil {
		rows, err := s.api.GetHistory(ctx, conversationID)
		if err != nil {
			fetchErr = errors.Wrapf(ErrHistoryFetch, "conversation %s: %v", conversationID, err)
		} else {
			entries = normalize.History(rows)
		}
	}

	inst := s.install(identity.NewBoundTracker(conversationID), entries, gen)
	s.metrics.RecordSessionSwitch("existing")

	if fetchErr != nil {
		inst.log.Error().Err(fetchErr).Msg("failed to load conversation history")
		s.display.Notify(Notification{
			Level:   LevelError,
			Kind:    KindHistoryFetch,
			Message: fmt.Sprintf("conversation history could not be loaded: %v", fetchErr),
		})
		return fetchErr
	}
	inst.log.Info().Int("entries", len(entries)).Msg("conversation opened")
	return nil
}

// install replaces the active instance in one step. Called with switchMu held.
func (s *Session) install(tracker *identity.Tracker, entries []models.TranscriptEntry, generation uint64) *instance {
	inst := s.newInstance(tracker, entries, generation)

	s.mu.Lock()
	prev := s.current
	s.current = inst
	view := inst.transcript.Entries()
	s.mu.Unlock()

	inst.log.Debug().Str("previousSessionId", prev.id).Msg("session switched")
	s.display.TranscriptUpdated(inst.id, view)
	return inst
}

// resetTransport moves the transport to the next generation and returns it.
// Called with switchMu held.
func (s *Session) resetTransport(ctx context.Context) uint64 {
	s.generation++
	gen := s.generation
	if err := s.transport.Reset(ctx, gen); err != nil {
		s.mu.Lock()
		logger := s.current.log
		s.mu.Unlock()
		logger.Warn().Err(err).Uint64("generation", gen).Msg("transport reset failed")
	}
	return gen
}

// RefreshConversations reloads the conversation list, most recent first.
func (s *Session) RefreshConversations(ctx context.Context) error {
	if s.api == nil {
		return nil
	}
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh conversations")
	}
	recent := make([]models.ConversationSummary, len(list))
	for i, c := range list {
		recent[len(list)-1-i] = c
	}

	s.mu.Lock()
	s.conversations = recent
	s.mu.Unlock()

	out := make([]models.ConversationSummary, len(recent))
	copy(out, recent)
	s.display.ConversationsUpdated(out)
	return nil
}

// Models returns the selectable models. Without a REST collaborator only the
// default model is offered.
func (s *Session) Models(ctx context.Context) ([]string, error) {
	if s.api == nil {
		return []string{s.cfg.DefaultModel}, nil
	}
	list, err := s.api.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	return list, nil
}

// DeleteConversation removes a conversation. Deleting the active one switches
// the session to New.
func (s *Session) DeleteConversation(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("delete conversation: empty id")
	}
	if s.api == nil {
		return errors.New("delete conversation: no conversation service configured")
	}
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		return errors.Wrapf(err, "delete conversation %s", conversationID)
	}

	if s.Identity().ConversationID() == conversationID {
		s.StartNew(ctx)
	}
	return s.RefreshConversations(ctx)
}
