package auth

import "time"

// EventType names a backend auth-change notification.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// SignsIn reports whether the event carries a (possibly refreshed) signed-in session.
func (t EventType) SignsIn() bool {
	switch t {
	case EventInitialSession, EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		return true
	default:
		return false
	}
}

// AuthEvent is one auth-change notification delivered by the backend subscription.
type AuthEvent struct {
	Type       EventType `json:"type"`
	Session    *Session  `json:"session,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Principal returns the event's principal when the event carries one.
func (e AuthEvent) Principal() (Principal, bool) {
	if !e.Session.HasPrincipal() {
		return Principal{}, false
	}
	return e.Session.User.Clone(), true
}
