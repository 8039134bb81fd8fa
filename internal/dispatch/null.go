package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/matchguard/matchguard/params"
)

// NullSender logs instead of delivering. Used when no backend is
// configured, typically in development.
type NullSender struct{}

func (NullSender) Send(ctx context.Context, destination string, code string, purpose string) (Receipt, error) {
	slog.Info("dispatch disabled, code not delivered",
		"destination", MaskDestination(destination), "purpose", purpose)
	return Receipt{
		Success:           true,
		MaskedDestination: MaskDestination(destination),
		ExpiresAt:         time.Now().Add(params.TwoFactorSMSCodeTTL),
	}, nil
}
