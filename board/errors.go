package board

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify any error returned
// by the Reader, Claimer or Provisioner.
var (
	// ErrBadRequest is malformed or missing input, or a policy limit exceeded.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound is a missing board, square or claim.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is a board that does not accept claims.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is one or more squares no longer open, or a lost race.
	ErrConflict = errors.New("conflict")

	// ErrStore is an unexpected backend failure.
	ErrStore = errors.New("store error")
)

// Error is a classified failure. Taken lists unavailable square ids for
// conflicts.
type Error struct {
	Kind    error
	Message string
	Taken   []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) *Error {
	return &Error{Kind: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

func conflict(msg string, taken []string) *Error {
	return &Error{Kind: ErrConflict, Message: msg, Taken: taken}
}

func storeError(msg string, err error) *Error {
	return &Error{Kind: ErrStore, Message: msg, Err: err}
}

// Outcome names the class of err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "store_error"
	}
}
