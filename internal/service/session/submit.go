package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"ai-chat-transcript-service/internal/models"
)

// Errors returned by session operations.
var (
	ErrTransportDelivery = errors.New("transport delivery failure")
	ErrHistoryFetch      = errors.New("history fetch failure")
)

// submission is the state change a user message causes, decided before any
// side effect runs.
type submission struct {
	step  models.StepEvent
	entry models.UserEntry
}

// prepareSubmission builds the outbound step for text. It reports false for
// empty or whitespace-only text.
func prepareSubmission(text, model string, id models.SessionIdentity, now time.Time) (submission, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return submission{}, false
	}
	step := models.StepEvent{
		ID:        uuid.NewString(),
		Name:      models.RoleUser,
		Type:      models.TypeUserMessage,
		Output:    text,
		CreatedAt: now.UTC().Format(time.RFC3339),
		Metadata: models.Metadata{
			Model:          model,
			ConversationID: id.ConversationID(),
		},
	}
	return submission{step: step, entry: models.UserEntry{Text: text}}, true
}

// Submit sends a user message. The entry is appended and the session marked
// awaiting before the step is published. It returns false when text is blank;
// nothing is appended or published in that case.
//
// A submission while a reply is outstanding is accepted. A conversation switch
// waits until the step is published.
func (s *Session) Submit(ctx context.Context, text, model string) (bool, error) {
	if strings.TrimSpace(model) == "" {
		model = s.cfg.DefaultModel
	}

	s.switchMu.RLock()
	defer s.switchMu.RUnlock()

	s.mu.Lock()
	inst := s.current
	sub, ok := prepareSubmission(text, model, inst.tracker.Identity(), time.Now())
	if !ok {
		s.mu.Unlock()
		s.metrics.RecordSubmission("ignored")
		return false, nil
	}
	if s.validator != nil {
		if err := s.validator.Validate(sub.step); err != nil {
			s.mu.Unlock()
			s.metrics.RecordSubmission("rejected")
			return false, err
		}
	}
	if inst.awaiting {
		inst.log.Debug().Msg("submitting while a reply is still outstanding")
	}
	inst.transcript.Append(sub.entry)
	inst.awaiting = true
	entries := inst.transcript.Entries()
	sessionID := inst.id
	logger := inst.log
	s.mu.Unlock()

	s.metrics.RecordEntryAppended(models.KindUser)
	s.display.TranscriptUpdated(sessionID, entries)

	if err := s.transport.Publish(ctx, sub.step); err != nil {
		s.metrics.RecordSubmission("failed")
		logger.Error().Err(err).Str("stepId", sub.step.ID).Msg("failed to publish user step")
		s.display.Notify(Notification{
			Level:   LevelError,
			Kind:    KindTransportDelivery,
			Message: fmt.Sprintf("message could not be sent: %v", err),
		})
		return true, errors.Wrapf(ErrTransportDelivery, "publish step %s: %v", sub.step.ID, err)
	}

	s.metrics.RecordSubmission("accepted")
	logger.Debug().Str("stepId", sub.step.ID).Str("model", model).Msg("user step published")
	return true, nil
}
