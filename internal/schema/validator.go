// Package schema checks outbound step events before they reach the transport.
package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ai-chat-transcript-service/internal/models"
)

// ErrInvalidStep is returned for a step that must not be published.
var ErrInvalidStep = errors.New("invalid step event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the fields every published step carries.
func (v *Validator) Validate(ev models.StepEvent) error {
	switch {
	case strings.TrimSpace(ev.ID) == "":
		return errors.Wrap(ErrInvalidStep, "missing id")
	case strings.TrimSpace(ev.Name) == "":
		return errors.Wrapf(ErrInvalidStep, "step %s: missing name", ev.ID)
	case !strings.Contains(ev.Type, "message"):
		return errors.Wrapf(ErrInvalidStep, "step %s: type %q is not a message", ev.ID, ev.Type)
	case strings.TrimSpace(ev.Output) == "":
		return errors.Wrapf(ErrInvalidStep, "step %s: empty output", ev.ID)
	case len(ev.Steps) > 0:
		return errors.Wrapf(ErrInvalidStep, "step %s: outbound steps carry no children", ev.ID)
	}
	if ev.Metadata.MessageType != "" {
		if _, err := models.ParseMessageType(ev.Metadata.MessageType); err != nil {
			return errors.Wrapf(ErrInvalidStep, "step %s: %v", ev.ID, err)
		}
	}
	log.Debug().Str("component", "schema").Str("stepId", ev.ID).Str("type", ev.Type).Msg("step validated")
	return nil
}
