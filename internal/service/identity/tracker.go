// Package identity tracks whether a conversation session has been assigned a
// server-side conversation id, and generates session instance ids.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"ai-chat-transcript-service/internal/models"
)

// State is the binding state of a session.
type State int

const (
	// StateNew - no conversation id yet; the server assigns one on the first reply.
	StateNew State = iota
	// StateBound - the session belongs to a conversation id. Terminal.
	StateBound
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateBound:
		return "BOUND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid transitions.
var (
	ErrAlreadyBound        = errors.New("session is already bound to a conversation")
	ErrEmptyConversationID = errors.New("conversation id is empty")
)

// Tracker is the identity state machine of one session instance.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	NEW ──Bind(id)──→ BOUND(id)
//
// Rules:
//   - NEW: Bind succeeds once and records the id
//   - BOUND: Bind always fails with ErrAlreadyBound; the id never changes
//
// A session opened on an existing conversation starts BOUND.
type Tracker struct {
	mu             sync.RWMutex
	state          State
	conversationID string
}

// NewTracker creates a tracker in NEW state.
func NewTracker() *Tracker {
	return &Tracker{state: StateNew}
}

// NewBoundTracker creates a tracker already bound to conversationID. An empty
// id yields a NEW tracker.
func NewBoundTracker(conversationID string) *Tracker {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return NewTracker()
	}
	return &Tracker{state: StateBound, conversationID: conversationID}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsBound returns true once a conversation id is recorded.
func (t *Tracker) IsBound() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state == StateBound
}

// ConversationID returns the bound id, or "" while NEW.
func (t *Tracker) ConversationID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conversationID
}

// Identity returns the current identity as a value.
func (t *Tracker) Identity() models.SessionIdentity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateBound {
		return models.NewIdentity()
	}
	return models.BoundIdentity(t.conversationID)
}

// Bind transitions NEW → BOUND(conversationID).
// Returns ErrAlreadyBound if the transition already happened.
func (t *Tracker) Bind(conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrEmptyConversationID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateNew:
		t.state = StateBound
		t.conversationID = conversationID
		return nil
	case StateBound:
		return ErrAlreadyBound
	default:
		return fmt.Errorf("unexpected state: %v", t.state)
	}
}
