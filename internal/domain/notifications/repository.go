package notifications

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/mailer"
)

type Repository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID string) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

type Mailer interface {
	SendNotification(ctx context.Context, msg mailer.Message) error
}
