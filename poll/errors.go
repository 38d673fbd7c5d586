package poll

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID     = errors.New("invalid poll id")
	ErrNotFound      = errors.New("poll not found")
	ErrInvalidOption = errors.New("invalid option")
	ErrPollClosed    = errors.New("poll is closed")
)

// ValidationError reports a rejected creation input, naming the offending
// field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
