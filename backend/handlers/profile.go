package handlers

import (
	"github.com/gofiber/fiber/v2"

	webmodels "github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/accounts"
)

func Me(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := webApp.Accounts.Profile(c.Context(), utils.ExtractSession(c))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, user, "")
	}
}

func UpdateMe(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in accounts.ProfileInput
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		user, err := webApp.Accounts.UpdateProfile(c.Context(), utils.ExtractSession(c), in)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, user, "Profile updated")
	}
}

func UpdateEmail(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.EmailRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		user, err := webApp.Accounts.UpdateEmail(c.Context(), utils.ExtractSession(c), req.Email)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		// The token still carries the old address and the account is
		// unverified again, so the caller has to sign in anew.
		webApp.Sessions.Destroy(c)
		return utils.SendSuccess(c, user, "Email updated, check your inbox to verify it")
	}
}

func UpdatePassword(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.PasswordRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		if err := webApp.Accounts.UpdatePassword(c.Context(), utils.ExtractSession(c), req.CurrentPassword, req.NewPassword); err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, nil, "Password updated")
	}
}

func SetPhoneVisibility(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.PhoneVisibilityRequest
		if err := bind(c, &req); err != nil {
			return utils.SendAppError(c, err)
		}
		user, err := webApp.Accounts.SetPhoneVisibility(c.Context(), utils.ExtractSession(c), req.Visible)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, user, "Phone visibility updated")
	}
}

func UploadPhoto(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		upload, err := utils.FormImage(c, "photo", true)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		defer upload.Close()

		user, err := webApp.Accounts.UploadPhoto(c.Context(), utils.ExtractSession(c), accounts.Photo{
			Filename:    upload.Filename,
			ContentType: upload.ContentType,
			Size:        upload.Size,
			Body:        upload.File,
		})
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, user, "Photo uploaded")
	}
}

// PublicProfile is another user's profile with their rating summary.
func PublicProfile(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		user, err := webApp.Accounts.PublicProfile(c.Context(), id)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		summary, err := webApp.Ratings.Summary(c.Context(), id)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, fiber.Map{
			"user":    user,
			"ratings": summary,
		}, "")
	}
}
