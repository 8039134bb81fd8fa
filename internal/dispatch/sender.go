package dispatch

import (
	"context"
	"strings"
	"time"
)

const (
	PurposeEnrollment   = "2fa_enrollment"
	PurposeVerification = "2fa_verification"
	PurposeUnlock       = "account_unlock"
)

// Receipt describes the outcome of a code dispatch. MaskedDestination is
// safe to echo back to the end user.
type Receipt struct {
	Success           bool
	MaskedDestination string
	ExpiresAt         time.Time
}

// Sender delivers one-time codes to a destination (phone number or email
// address). Implementations must not block beyond the context deadline.
type Sender interface {
	Send(ctx context.Context, destination string, code string, purpose string) (Receipt, error)
}

// MaskDestination partially redacts a phone number or email address.
func MaskDestination(destination string) string {
	if at := strings.IndexByte(destination, '@'); at > 0 {
		local, domain := destination[:at], destination[at+1:]
		if len(local) <= 2 {
			return "***@" + domain
		}
		return local[:2] + "***@" + domain
	}
	if len(destination) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(destination)-4) + destination[len(destination)-4:]
}
