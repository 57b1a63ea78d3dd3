package handlers

import (
	"github.com/gofiber/fiber/v2"

	webmodels "github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/backend/utils"
)

func ChatsList(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Chats.List(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

// ChatsOpen returns the conversation with another user, creating it on
// first contact.
func ChatsOpen(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.OpenChatRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		conv, err := webApp.Chats.Open(c.Context(), utils.ExtractSession(c), req.UserID)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, conv, "")
	}
}

func ChatMessages(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Chats.Messages(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func ChatSend(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.MessageRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		msg, err := webApp.Chats.Send(c.Context(), utils.ExtractSession(c), c.Params("id"), req.Text)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendCreated(c, msg, "")
	}
}
