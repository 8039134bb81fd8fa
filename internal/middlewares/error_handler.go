package middlewares

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/accounts"
	"github.com/matchguard/matchguard/internal/auth"
	"github.com/matchguard/matchguard/internal/devices"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/handlers/api"
	"github.com/matchguard/matchguard/internal/lockout"
	"github.com/matchguard/matchguard/internal/twofactor"
)

// ErrorHandler maps domain errors onto the JSON error envelope. Backend
// failures are reported generically; details go to the log only.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var (
		fiberErr      *fiber.Error
		validationErr validator.ValidationErrors
		lockedErr     *lockout.AccountLockedError
		attemptErr    *twofactor.AttemptFailError
		lookupErr     *devices.DeviceLookupError
	)

	switch {
	case errors.As(err, &fiberErr):
		return respondError(ctx, fiberErr.Code, fiberErr.Message)
	case errors.As(err, &validationErr):
		return respondError(ctx, fiber.StatusBadRequest, "Invalid request payload")
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return respondError(ctx, fiber.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrPermissionDenied):
		return respondError(ctx, fiber.StatusForbidden, "Permission denied")
	case errors.As(err, &lockedErr):
		// the trigger reason stays in the event log for the dashboard
		return respondError(ctx, fiber.StatusLocked, "Account temporarily restricted")
	case errors.As(err, &attemptErr):
		return respondError(ctx, fiber.StatusUnauthorized, attemptErr.Error())
	case errors.Is(err, twofactor.ErrTooManyAttempts),
		errors.Is(err, lockout.ErrTooManyUnlockAttempts):
		return respondError(ctx, fiber.StatusTooManyRequests, "Too many attempts, try again later")
	case errors.Is(err, accounts.ErrUserNotFound),
		errors.Is(err, devices.ErrDeviceNotFound),
		errors.Is(err, events.ErrEventNotFound):
		return respondError(ctx, fiber.StatusNotFound, "Not found")
	case errors.Is(err, accounts.ErrEmailRegistered):
		return respondError(ctx, fiber.StatusConflict, "Email already registered")
	case errors.Is(err, events.ErrAlreadyResolved),
		errors.Is(err, accounts.ErrDeletePending),
		errors.Is(err, lockout.ErrAlreadyLocked):
		return respondError(ctx, fiber.StatusConflict, err.Error())
	case errors.Is(err, twofactor.ErrAlreadyEnabled),
		errors.Is(err, twofactor.ErrNotEnabled),
		errors.Is(err, twofactor.ErrNoPendingEnrollment),
		errors.Is(err, twofactor.ErrMethodMismatch),
		errors.Is(err, lockout.ErrNotLocked),
		errors.Is(err, accounts.ErrNotEnoughQuestions),
		errors.Is(err, accounts.ErrQuestionVerifyFail),
		errors.Is(err, accounts.ErrInvalidExportToken):
		return respondError(ctx, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &lookupErr), errors.Is(err, events.ErrStoreUnavailable):
		slog.Error("backend unavailable", "path", ctx.Path(), "error", err)
		return respondError(ctx, fiber.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		slog.Error("unhandled error", "path", ctx.Path(), "error", err)
		return respondError(ctx, fiber.StatusInternalServerError, "Internal server error")
	}
}

func respondError(ctx *fiber.Ctx, code int, message string) error {
	return ctx.Status(code).JSON(api.NewErrorResponse(code, message))
}
