package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
)

// CustomErrorHandler renders errors that escaped the handlers in the
// APIResponse envelope.
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "HTTP_ERROR"
		switch fe.Code {
		case fiber.StatusNotFound:
			code = "NOT_FOUND"
		case fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case fiber.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		case fiber.StatusBadRequest:
			code = "BAD_REQUEST"
		}
		return utils.SendError(c, fe.Code, code, fe.Message, nil)
	}

	slog.Error("Unhandled request error",
		slog.String("type", "http"),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Any("error", err))
	return utils.SendError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", nil)
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		return c.Next()
	}
}
