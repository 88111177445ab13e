package chat

import (
	"errors"
	"fmt"
)

// ErrRateLimited rejects a send when the identity exceeded its send budget.
var ErrRateLimited = errors.New("send rate limit exceeded")

// ValidationError rejects a send before anything is persisted. It is
// reported only to the sender.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid send: " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError reports that the durable store rejected a send. The
// message was not delivered to anyone.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("message not persisted: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
