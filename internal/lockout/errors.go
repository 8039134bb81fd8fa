package lockout

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyLocked         = errors.New("account already locked")
	ErrNotLocked             = errors.New("account not locked")
	ErrTooManyUnlockAttempts = errors.New("too many unlock attempts")
)

// AccountLockedError is returned to authentication flows while a lock is
// in force. Until is nil for indefinite locks.
type AccountLockedError struct {
	Reason string
	Until  *time.Time
}

func (e *AccountLockedError) Error() string {
	if e.Until == nil {
		return fmt.Sprintf("account locked: %s", e.Reason)
	}
	return fmt.Sprintf("account locked until %s: %s", e.Until.Format(time.RFC3339), e.Reason)
}
