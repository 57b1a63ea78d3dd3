package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
)

func AdminUsers(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Admin.Users(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func AdminVerifyUser(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := webApp.Admin.VerifyUser(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, user, "User verified")
	}
}

func AdminCards(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Admin.Cards(c.Context(), utils.ExtractSession(c), ascending(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func AdminDeleteCard(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := webApp.Admin.DeleteCard(c.Context(), utils.ExtractSession(c), c.Params("id")); err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, nil, "Card deleted")
	}
}

func AdminTransactions(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Admin.Transactions(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func AdminDashboard(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dash, err := webApp.Admin.Dashboard(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, dash, "")
	}
}
