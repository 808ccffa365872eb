package event

import "time"

type Type string

const (
	TypeUserSignedUp    Type = "user.signed_up"
	TypeUserSignedIn    Type = "user.signed_in"
	TypeSigninRejected  Type = "user.signin_rejected"
	TypeTokenRefreshed  Type = "session.refreshed"
	TypeRefreshRotated  Type = "session.rotated"
	TypeRefreshRejected Type = "session.refresh_rejected"
	TypeUserLoggedOut   Type = "session.ended"
)

// Event describes something that happened to a session. It never carries
// tokens or passwords.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
