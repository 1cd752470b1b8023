package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown post identifier.
	ErrNotFound = errors.New("post not found")
	// ErrDuplicateID signals a create with an identifier that already exists.
	ErrDuplicateID = errors.New("duplicate post id")
)

// ValidationError reports a malformed scheduling request. It is surfaced
// to the caller and never enters the retry path.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
