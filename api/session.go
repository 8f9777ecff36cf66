package api

import (
	"context"
	"time"
)

// AuthData is the opaque payload returned by an [Authenticator]. It is handed
// back to the next authentication attempt.
type AuthData any

// Session is the authenticated context shared by every call of a wrapper.
// It is replaced as a whole after a successful authentication and never
// partially updated.
type Session struct {
	AuthenticatedUntil  time.Time
	AuthenticatedData   AuthData
	AuthenticatedSiteID int
}

// ValidAt reports whether the session may still be authenticated at t.
func (s Session) ValidAt(t time.Time) bool {
	return s.AuthenticatedUntil.After(t)
}

// Authenticator logs in to the remote service.
type Authenticator interface {
	// Authenticate returns fresh authentication data and the default site id
	// of the account. previous is nil on the first attempt.
	Authenticate(ctx context.Context, previous AuthData) (AuthData, int, error)
}

// Distant performs one remote call with the current session.
type Distant interface {
	CallDistant(ctx context.Context, session Session, req *Request) (any, error)
}
