// Package router binds a new conversation session to the conversation id the
// server assigns in its first reply.
package router

import (
	"context"
	"strings"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/service/identity"
	"ai-chat-transcript-service/internal/service/normalize"
)

// Navigator is told once when a new session learns its conversation id.
type Navigator interface {
	ConversationBound(conversationID string)
}

// Refresher reloads the externally owned conversation list.
type Refresher interface {
	RefreshConversations(ctx context.Context) error
}

// Router fires the New → Bound transition of a session. It never fires for
// sessions opened on an existing conversation.
type Router struct {
	tracker   *identity.Tracker
	navigator Navigator
	refresher Refresher
}

// New creates a router for one session instance. navigator and refresher may
// be nil.
func New(tracker *identity.Tracker, navigator Navigator, refresher Refresher) *Router {
	return &Router{
		tracker:   tracker,
		navigator: navigator,
		refresher: refresher,
	}
}

// Route inspects a reconciled event. It returns true when this event bound the
// session; the refresh error, if any, is returned alongside.
func (r *Router) Route(ctx context.Context, ev models.StepEvent) (bool, error) {
	if r == nil || r.tracker == nil || r.tracker.IsBound() {
		return false, nil
	}
	if !normalize.IsAssistant(ev) {
		return false, nil
	}
	conversationID := strings.TrimSpace(ev.Metadata.ConversationID)
	if conversationID == "" {
		return false, nil
	}
	if err := r.tracker.Bind(conversationID); err != nil {
		// lost a race against another bind; nothing more to do
		return false, nil
	}

	if r.navigator != nil {
		r.navigator.ConversationBound(conversationID)
	}
	if r.refresher != nil {
		return true, r.refresher.RefreshConversations(ctx)
	}
	return true, nil
}
