package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/asiradnan/saml/internal/web/session"
)

// RequireStaff creates Fiber middleware that requires a staff or admin user.
func RequireStaff() fiber.Handler {
	return requireFlag(func(rec *session.Record) bool {
		return rec.User.Staff || rec.User.Admin
	}, "staff")
}

// RequireAdmin creates Fiber middleware that requires an admin user.
func RequireAdmin() fiber.Handler {
	return requireFlag(func(rec *session.Record) bool {
		return rec.User.Admin
	}, "admin")
}

// requireFlag reads the session record and checks the given predicate
// against the logged-in user.
func requireFlag(allowed func(*session.Record) bool, what string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get session cookie
		sessionID := c.Cookies("session")
		if sessionID == "" {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		// Read session record
		rec := new(session.Record)
		if err := rec.Read(sessionID); err != nil {
			log.Error().Err(err).Msg("failed to read session")
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		// Check if the session is valid
		if rec.User.ID == 0 {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		if !allowed(rec) {
			log.Warn().
				Uint64("user_id", rec.User.ID).
				Str("required", what).
				Msg("user lacks required rights")

			return c.Status(fiber.StatusForbidden).
				SendString("Forbidden: You don't have permission to access this resource")
		}

		return c.Next()
	}
}
