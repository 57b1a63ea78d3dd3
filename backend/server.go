// Package backend assembles the marketplace HTTP API.
package backend

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/swapcard/marketplace/backend/handlers"
	"github.com/swapcard/marketplace/backend/middleware"
	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/swapcard"
)

// bodyLimit leaves room for a multipart form around a maximum size image.
const bodyLimit = 12 * 1024 * 1024

func NewApp(cfg swapcard.WebConfig, webApp *handlers.WebApp) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      swapcard.Name + " API",
		ServerHeader: swapcard.Name,
		ErrorHandler: middleware.CustomErrorHandler,
		BodyLimit:    bodyLimit,
	})

	app.Use(recover.New())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		// An event stream has to reach the client unbuffered.
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/stream/")
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,Idempotency-Key",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	app.Use(middleware.LoggingMiddleware())

	SetupRoutes(app, webApp)
	return app
}

func SetupRoutes(app *fiber.App, webApp *handlers.WebApp) {
	app.Get("/health", handlers.HealthCheck(webApp))

	auth := app.Group("/auth")
	auth.Post("/signup", middleware.AuthRateLimit(), handlers.SignUp(webApp))
	auth.Post("/signin", middleware.AuthRateLimit(), handlers.SignIn(webApp))
	auth.Post("/signout", handlers.SignOut(webApp))

	api := app.Group("/api", middleware.AuthRequired(webApp), middleware.APIRateLimit())
	api.Get("/auth/validate", handlers.ValidateSession(webApp))

	me := api.Group("/me")
	me.Get("/", handlers.Me(webApp))
	me.Put("/", handlers.UpdateMe(webApp))
	me.Put("/email", handlers.UpdateEmail(webApp))
	me.Put("/password", handlers.UpdatePassword(webApp))
	me.Put("/phone-visibility", handlers.SetPhoneVisibility(webApp))
	me.Post("/photo", middleware.UploadRateLimit(), handlers.UploadPhoto(webApp))

	users := api.Group("/users")
	users.Get("/:id", handlers.PublicProfile(webApp))
	users.Get("/:id/cards", handlers.CardsOfUser(webApp))

	cards := api.Group("/cards")
	cards.Get("/", handlers.CardsBrowse(webApp))
	cards.Get("/mine", handlers.CardsMine(webApp))
	cards.Get("/recent", handlers.CardsRecent(webApp))
	cards.Post("/", middleware.UploadRateLimit(), handlers.CardsCreate(webApp))
	cards.Get("/:id", handlers.CardsDetail(webApp))
	cards.Put("/:id", handlers.CardsUpdate(webApp))
	cards.Delete("/:id", handlers.CardsDelete(webApp))
	cards.Get("/:id/offers", handlers.CardOffers(webApp))

	swaps := api.Group("/swaps")
	swaps.Post("/", handlers.SwapsCreate(webApp))
	swaps.Get("/incoming", handlers.SwapsIncoming(webApp))
	swaps.Get("/outgoing", handlers.SwapsOutgoing(webApp))
	swaps.Post("/:id/accept", handlers.SwapsAccept(webApp))
	swaps.Post("/:id/deny", handlers.SwapsDeny(webApp))

	api.Get("/transactions", handlers.Transactions(webApp))

	ratings := api.Group("/ratings")
	ratings.Post("/", handlers.RatingsSubmit(webApp))
	ratings.Get("/users/:id", handlers.RatingsForUser(webApp))
	ratings.Get("/users/:id/summary", handlers.RatingsSummary(webApp))

	notifications := api.Group("/notifications")
	notifications.Get("/", handlers.NotificationsList(webApp))
	notifications.Get("/unread", handlers.NotificationsUnread(webApp))
	notifications.Post("/read", handlers.NotificationsReadAll(webApp))
	notifications.Delete("/", handlers.NotificationsDeleteAll(webApp))
	notifications.Post("/:id/read", handlers.NotificationsRead(webApp))
	notifications.Delete("/:id", handlers.NotificationsDelete(webApp))

	chats := api.Group("/chats")
	chats.Get("/", handlers.ChatsList(webApp))
	chats.Post("/", handlers.ChatsOpen(webApp))
	chats.Get("/:id/messages", handlers.ChatMessages(webApp))
	chats.Post("/:id/messages", handlers.ChatSend(webApp))

	api.Get("/stream/:topic/:id?", handlers.Stream(webApp))

	admin := app.Group("/admin", middleware.AuthRequired(webApp), middleware.AdminRequired(webApp))
	admin.Get("/dashboard", handlers.AdminDashboard(webApp))
	admin.Get("/users", handlers.AdminUsers(webApp))
	admin.Post("/users/:id/verify", middleware.AuditLogMiddleware("verify_user"), handlers.AdminVerifyUser(webApp))
	admin.Get("/cards", handlers.AdminCards(webApp))
	admin.Delete("/cards/:id", middleware.AuditLogMiddleware("delete_card"), handlers.AdminDeleteCard(webApp))
	admin.Get("/transactions", handlers.AdminTransactions(webApp))

	app.Use(func(c *fiber.Ctx) error {
		slog.Warn("No route matched for request",
			slog.String("type", "http"),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()))
		return utils.SendNotFound(c, "The requested endpoint does not exist")
	})
}
