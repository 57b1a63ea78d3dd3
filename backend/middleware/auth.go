package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/handlers"
	"github.com/swapcard/marketplace/backend/utils"
)

// AuthRequired rejects requests without a valid session token and stores
// the caller under utils.SessionKey.
func AuthRequired(webApp *handlers.WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := webApp.Sessions.FromRequest(c)
		if err != nil {
			slog.Debug("Auth required: no valid session",
				slog.String("type", "http"),
				slog.String("path", c.Path()),
				slog.Any("error", err))
			return utils.SendUnauthorized(c, "Authentication required")
		}
		c.Locals(utils.SessionKey, sess)
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired(webApp *handlers.WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := utils.ExtractSession(c)
		if sess == nil {
			return utils.SendUnauthorized(c, "Authentication required")
		}
		if !sess.IsAdmin() {
			slog.Warn("Admin required: user lacks admin role",
				slog.String("type", "http"),
				slog.String("user_id", sess.UserID),
				slog.String("path", c.Path()))
			return utils.SendForbidden(c, "Admin access required")
		}
		return c.Next()
	}
}

// OptionalAuth stores the caller when a valid token is present.
func OptionalAuth(webApp *handlers.WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sess, err := webApp.Sessions.FromRequest(c); err == nil {
			c.Locals(utils.SessionKey, sess)
		}
		return c.Next()
	}
}
