package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by a wrapper that does not implement an
	// operation. [Fallback] switches to its secondary wrapper on it.
	ErrUnsupported = errors.New("operation not supported by this wrapper")

	ErrForbiddenSiteID   = errors.New("forbidden site id")
	ErrUnknownStateLabel = errors.New("unknown state label")
	ErrAlarmPassword     = errors.New("alarm password does not match account credentials")
	ErrPageNotFound      = errors.New("page not found case returned by myfox")
	ErrForbiddenRedirect = errors.New("myfox redirected because of forbidden access")
	ErrLoginFailed       = errors.New("login failed")
	ErrUnknownFormat     = errors.New("unknown format returned by myfox")
	ErrRemoteKO          = errors.New("myfox answered KO")
)

// StatusError tags an error with an HTTP-like status code.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus tags err with status. A nil err stays nil.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}

// Status returns the outermost status carried by err, or 0 if there is none.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// withDefaultStatus tags err with status unless it already carries one.
func withDefaultStatus(err error, status int) error {
	if err == nil || Status(err) != 0 {
		return err
	}
	return WithStatus(err, status)
}

// ValidationError is returned synchronously when an option or an action does
// not match its schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%q %s", e.Field, e.Message)
}
