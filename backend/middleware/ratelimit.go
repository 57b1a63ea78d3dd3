package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/swapcard/marketplace/backend/utils"
)

// RateLimit allows limit requests per window per client IP.
func RateLimit(limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          limit,
		Expiration:   window,
		KeyGenerator: utils.GetIPAddress,
		LimitReached: func(c *fiber.Ctx) error {
			slog.Warn("Rate limit exceeded",
				slog.String("type", "http"),
				slog.String("ip", utils.GetIPAddress(c)),
				slog.String("path", c.Path()),
				slog.Int("limit", limit),
				slog.Duration("window", window))
			return utils.SendError(c, fiber.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				"Too many requests. Please try again later.", nil)
		},
	})
}

// AuthRateLimit guards sign-in and sign-up.
func AuthRateLimit() fiber.Handler {
	return RateLimit(10, time.Minute)
}

func APIRateLimit() fiber.Handler {
	return RateLimit(300, time.Minute)
}

func UploadRateLimit() fiber.Handler {
	return RateLimit(30, time.Hour)
}
