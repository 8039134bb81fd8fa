package twofactor

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyEnabled      = errors.New("two-factor already enabled")
	ErrNotEnabled          = errors.New("two-factor not enabled")
	ErrNoPendingEnrollment = errors.New("no pending enrollment")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrMethodMismatch      = errors.New("operation not valid for active method")
)

// AttemptFailError reports a rejected code along with how many attempts
// remain in the current window.
type AttemptFailError struct {
	AttemptsLeft int
}

func (e *AttemptFailError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts left", e.AttemptsLeft)
}
