package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/matchguard/matchguard/internal/auth"
	"github.com/matchguard/matchguard/internal/sessions"
)

// RequireAuth rejects requests without a fully authenticated session,
// including sessions still waiting on a second factor.
func RequireAuth() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sess := sessions.Get(ctx)
		if !sess.IsAuthenticated() {
			return fiber.ErrUnauthorized
		}
		return ctx.Next()
	}
}

func currentUserID(ctx *fiber.Ctx) uint {
	return sessions.Get(ctx).UserID
}

// RequireCapability gates a route on the session role granting the
// capability.
func RequireCapability(policy *auth.Policy, capability auth.Capability) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sess := sessions.Get(ctx)
		if !sess.IsAuthenticated() {
			return fiber.ErrUnauthorized
		}
		if err := policy.Require(sess.Role, capability); err != nil {
			return err
		}
		return ctx.Next()
	}
}
