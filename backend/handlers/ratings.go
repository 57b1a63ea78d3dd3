package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/ratings"
)

func RatingsSubmit(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in ratings.SubmitInput
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		rating, err := webApp.Ratings.SubmitRating(c.Context(), utils.ExtractSession(c), in)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendCreated(c, rating, "Rating submitted")
	}
}

func RatingsForUser(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Ratings.ForUser(c.Context(), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func RatingsSummary(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := webApp.Ratings.Summary(c.Context(), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, summary, "")
	}
}
