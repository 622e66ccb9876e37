package app

import (
	"errors"
	"fmt"
)

var (
	ErrNoteNotFound  = errors.New("note not found")
	ErrNoteForbidden = errors.New("note forbidden")
	// ErrEmailTaken indicates signup with an already registered email.
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrUserNotFound       = errors.New("user not found")
)

// FieldError attributes a failure to one request field. An empty Field
// means the error is general.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}

func fieldWrap(field string, err error) *FieldError {
	return &FieldError{Field: field, Message: err.Error(), Err: err}
}
