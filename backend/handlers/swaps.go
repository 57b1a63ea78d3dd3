package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const IdempotencyHeader = "Idempotency-Key"

func SwapsCreate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in swaps.CreateInput
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		in.IdempotencyKey = c.Get(IdempotencyHeader)

		req, err := webApp.Swaps.CreateSwapRequest(c.Context(), utils.ExtractSession(c), in)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendCreated(c, req, "Swap request sent")
	}
}

// SwapsIncoming accepts ?day=YYYY-MM-DD, ?status= and ?order=asc.
func SwapsIncoming(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := swaps.IncomingFilter{
			Status:    models.SwapStatus(c.Query("status")),
			Ascending: ascending(c),
		}
		switch f.Status {
		case "", models.SwapPending, models.SwapAccepted, models.SwapDenied:
		default:
			return utils.SendAppError(c, apperr.Invalid("swaps.Incoming", "status", "must be pending, accepted or denied"))
		}
		if day := c.Query("day"); day != "" {
			t, err := time.ParseInLocation(time.DateOnly, day, time.UTC)
			if err != nil {
				return utils.SendAppError(c, apperr.Invalid("swaps.Incoming", "day", "must be a date like 2024-05-01"))
			}
			f.Day = t
		}

		list, err := webApp.Swaps.Incoming(c.Context(), utils.ExtractSession(c), f)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func SwapsOutgoing(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Swaps.Outgoing(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func SwapsAccept(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := webApp.Swaps.AcceptRequest(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, res, "Swap accepted")
	}
}

func SwapsDeny(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := webApp.Swaps.DenyRequest(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, req, "Swap denied")
	}
}

func Transactions(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Swaps.TransactionsFor(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}
