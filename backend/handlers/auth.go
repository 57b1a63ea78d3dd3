package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	webmodels "github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/accounts"
)

func SignUp(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in accounts.SignUpInput
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		user, err := webApp.Accounts.SignUp(c.Context(), in)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		slog.Info("Account created",
			slog.String("type", "http"),
			slog.String("user_id", user.ID))
		return utils.SendCreated(c, user, "Account created, check your email to verify it")
	}
}

func SignIn(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.SignInRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		sess, user, err := webApp.Accounts.SignIn(c.Context(), req.Email, req.Password)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		token, err := webApp.Sessions.Issue(c, sess)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, webmodels.SignInResponse{
			Token:     token,
			ExpiresAt: sess.ExpiresAt.Unix(),
			User:      user,
		}, "Signed in")
	}
}

func SignOut(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		webApp.Sessions.Destroy(c)
		return utils.SendSuccess(c, nil, "Signed out")
	}
}

// ValidateSession reports the caller carried by the token.
func ValidateSession(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, utils.ExtractSession(c), "Session is valid")
	}
}
