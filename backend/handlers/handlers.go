package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/swapcard/marketplace/backend/services"
	"github.com/swapcard/marketplace/backend/utils"
	"github.com/swapcard/marketplace/internal/domain/accounts"
	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/cards"
	"github.com/swapcard/marketplace/internal/domain/chat"
	"github.com/swapcard/marketplace/internal/domain/ratings"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

type Accounts interface {
	SignUp(ctx context.Context, in accounts.SignUpInput) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (*session.Session, *models.User, error)
	Profile(ctx context.Context, sess *session.Session) (*models.User, error)
	PublicProfile(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, sess *session.Session, in accounts.ProfileInput) (*models.User, error)
	SetPhoneVisibility(ctx context.Context, sess *session.Session, visible bool) (*models.User, error)
	UpdateEmail(ctx context.Context, sess *session.Session, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, sess *session.Session, current, next string) error
	UploadPhoto(ctx context.Context, sess *session.Session, p accounts.Photo) (*models.User, error)
}

type Swaps interface {
	CreateSwapRequest(ctx context.Context, sess *session.Session, in swaps.CreateInput) (*models.SwapRequest, error)
	AcceptRequest(ctx context.Context, sess *session.Session, id string) (*swaps.AcceptResult, error)
	DenyRequest(ctx context.Context, sess *session.Session, id string) (*models.SwapRequest, error)
	Incoming(ctx context.Context, sess *session.Session, f swaps.IncomingFilter) ([]*models.SwapRequest, error)
	Outgoing(ctx context.Context, sess *session.Session) ([]*models.SwapRequest, error)
	OffersForCard(ctx context.Context, sess *session.Session, cardID string) ([]*models.SwapRequest, error)
	TransactionsFor(ctx context.Context, sess *session.Session) ([]swaps.TransactionView, error)
}

type Ratings interface {
	SubmitRating(ctx context.Context, sess *session.Session, in ratings.SubmitInput) (*models.Rating, error)
	ForUser(ctx context.Context, userID string) ([]*models.Rating, error)
	Summary(ctx context.Context, userID string) (*models.RatingSummary, error)
}

type Notifications interface {
	List(ctx context.Context, sess *session.Session) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, sess *session.Session) (int, error)
	MarkAllRead(ctx context.Context, sess *session.Session) (int, error)
	MarkRead(ctx context.Context, sess *session.Session, id string) error
	DeleteAll(ctx context.Context, sess *session.Session) (int, error)
	Delete(ctx context.Context, sess *session.Session, id string) error
}

type Chats interface {
	Open(ctx context.Context, sess *session.Session, otherID string) (*models.Conversation, error)
	Authorize(ctx context.Context, sess *session.Session, conversationID string) (*models.Conversation, error)
	Send(ctx context.Context, sess *session.Session, conversationID, text string) (*models.Message, error)
	List(ctx context.Context, sess *session.Session) ([]chat.Summary, error)
	Messages(ctx context.Context, sess *session.Session, conversationID string) ([]*models.Message, error)
}

type Admin interface {
	Users(ctx context.Context, sess *session.Session) ([]*models.User, error)
	VerifyUser(ctx context.Context, sess *session.Session, id string) (*models.User, error)
	Cards(ctx context.Context, sess *session.Session, ascending bool) ([]*models.CardListing, error)
	DeleteCard(ctx context.Context, sess *session.Session, id string) error
	Transactions(ctx context.Context, sess *session.Session) ([]admin.TransactionView, error)
	Dashboard(ctx context.Context, sess *session.Session) (*admin.Dashboard, error)
}

// Streams opens change-feed subscriptions. *feed.Hub satisfies it.
type Streams interface {
	Subscribe(ctx context.Context, topic string) (*feed.Subscription, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// WebApp represents the web application with all dependencies
type WebApp struct {
	DB            Pinger
	Sessions      *services.SessionService
	Accounts      Accounts
	Cards         cards.Service
	Swaps         Swaps
	Ratings       Ratings
	Notifications Notifications
	Chats         Chats
	Admin         Admin
	Streams       Streams
	Version       string

	// StreamHeartbeat is how often an idle event stream sends a comment.
	StreamHeartbeat time.Duration
}

func HealthCheck(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		if webApp.DB != nil {
			if err := webApp.DB.Ping(ctx); err != nil {
				return utils.SendError(c, fiber.StatusServiceUnavailable, "UNHEALTHY", "database unreachable", nil)
			}
		}
		return utils.SendSuccess(c, fiber.Map{
			"status":  "healthy",
			"version": webApp.Version,
		}, "Health check successful")
	}
}

// bind decodes the request body into v, reporting malformed input as a
// validation failure.
func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.E(apperr.Validation, "request.Body", errors.New("malformed request body"))
	}
	return nil
}

// ascending reads ?order=asc|desc. Anything else is the default, newest first.
func ascending(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Query("order"), "asc")
}
