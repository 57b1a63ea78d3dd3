package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/cards"
)

// CardsBrowse lists open listings of other users, fuzzy ranked by ?q=.
func CardsBrowse(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := utils.ExtractSession(c)
		list, err := webApp.Cards.ListOpenExcluding(c.Context(), sess.UserID, c.Query("q"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func CardsRecent(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := utils.ExtractSession(c)
		list, err := webApp.Cards.ListRecent(c.Context(), sess.UserID)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func CardsMine(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Cards.ListOwnedBy(c.Context(), utils.ExtractSession(c).UserID)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

// CardsOfUser is the listings shown on a public profile.
func CardsOfUser(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := webApp.Cards.ListOwnedBy(c.Context(), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, list, "")
	}
}

func CardsDetail(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		detail, err := webApp.Cards.Get(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, detail, "")
	}
}

func CardsCreate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in cards.Input
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		upload, err := utils.FormImage(c, "image", true)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		defer upload.Close()

		listing, err := webApp.Cards.Create(c.Context(), utils.ExtractSession(c), in, cardImage(upload))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendCreated(c, listing, "Card listed")
	}
}

// CardsUpdate replaces the editable fields. The image is optional.
func CardsUpdate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in cards.Input
		if err := bind(c, &in); err != nil {
			return utils.SendAppError(c, err)
		}
		upload, err := utils.FormImage(c, "image", false)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		var img *cards.Image
		if upload != nil {
			defer upload.Close()
			img = cardImage(upload)
		}

		listing, err := webApp.Cards.Update(c.Context(), utils.ExtractSession(c), c.Params("id"), in, img)
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, listing, "Card updated")
	}
}

func CardsDelete(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := webApp.Cards.Delete(c.Context(), utils.ExtractSession(c), c.Params("id")); err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, nil, "Card deleted")
	}
}

// CardOffers lists the requests made for one of the caller's cards.
func CardOffers(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offers, err := webApp.Swaps.OffersForCard(c.Context(), utils.ExtractSession(c), c.Params("id"))
		if err != nil {
			return utils.SendAppError(c, err)
		}
		return utils.SendSuccess(c, offers, "")
	}
}

func cardImage(u *utils.Upload) *cards.Image {
	return &cards.Image{
		Filename:    u.Filename,
		ContentType: u.ContentType,
		Size:        u.Size,
		Body:        u.File,
	}
}
