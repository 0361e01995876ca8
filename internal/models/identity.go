package models

// SessionIdentity is either New (no server-assigned id yet) or Bound to a
// conversation id.
type SessionIdentity struct {
	conversationID string
}

// NewIdentity returns an unbound identity.
func NewIdentity() SessionIdentity {
	return SessionIdentity{}
}

// BoundIdentity returns an identity bound to conversationID.
func BoundIdentity(conversationID string) SessionIdentity {
	return SessionIdentity{conversationID: conversationID}
}

// IsBound reports whether a conversation id has been assigned.
func (s SessionIdentity) IsBound() bool {
	return s.conversationID != ""
}

// ConversationID returns the bound id, or "" for a New identity.
func (s SessionIdentity) ConversationID() string {
	return s.conversationID
}

// String returns "new" or "bound(<id>)".
func (s SessionIdentity) String() string {
	if !s.IsBound() {
		return "new"
	}
	return "bound(" + s.conversationID + ")"
}
