package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/swapcard/logger"
)

// LoggingMiddleware logs one line per request.
func LoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler write the response so the status is final.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		attrs := []any{
			slog.String("ip", utils.GetIPAddress(c)),
			slog.Int("size", len(c.Response().Body())),
		}
		if sess := utils.ExtractSession(c); sess != nil {
			attrs = append(attrs, slog.String("user_id", sess.UserID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogRequest(c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start), attrs...)
		return nil
	}
}

// AuditLogMiddleware records the outcome of administrative actions.
func AuditLogMiddleware(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		var userID string
		if sess := utils.ExtractSession(c); sess != nil {
			userID = sess.UserID
		}
		status := c.Response().StatusCode()
		slog.Info("Admin action completed",
			slog.String("type", "http"),
			slog.String("action", action),
			slog.String("path", c.Path()),
			slog.Bool("success", err == nil && status < 300),
			slog.Int("status", status),
			slog.String("user_id", userID))
		return err
	}
}
