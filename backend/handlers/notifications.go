package handlers

import (
	"github.com/gofiber/fiber/v2"

	webmodels "github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/backend/utils"
)

func NotificationsList(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Notifications.List(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func NotificationsUnread(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := webApp.Notifications.UnreadCount(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, webmodels.Count{Count: n}, "")
	}
}

func NotificationsReadAll(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := webApp.Notifications.MarkAllRead(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, webmodels.Count{Count: n}, "Notifications marked as read")
	}
}

func NotificationsRead(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := webApp.Notifications.MarkRead(c.Context(), utils.ExtractSession(c), c.Params("id")); err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, nil, "Notification marked as read")
	}
}

func NotificationsDeleteAll(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := webApp.Notifications.DeleteAll(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, webmodels.Count{Count: n}, "Notifications deleted")
	}
}

func NotificationsDelete(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := webApp.Notifications.Delete(c.Context(), utils.ExtractSession(c), c.Params("id")); err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, nil, "Notification deleted")
	}
}
