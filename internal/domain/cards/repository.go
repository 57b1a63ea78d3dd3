package cards

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"
	"time"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
)

type Repository interface {
	Create(ctx context.Context, l *models.CardListing) error
	GetByID(ctx context.Context, id string) (*models.CardListing, error)
	Update(ctx context.Context, l *models.CardListing) error
	Delete(ctx context.Context, id string) error
	ListOpen(ctx context.Context, excludeUID string, now time.Time) ([]*models.CardListing, error)
	ListByOwner(ctx context.Context, uid string) ([]*models.CardListing, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]*models.CardListing, error)
}

// ImageStore holds listing images. Put returns the public URL.
type ImageStore interface {
	Put(ctx context.Context, obj storage.Object) (string, error)
	Delete(ctx context.Context, key string) error
}

type Users interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Offers interface {
	ListForCard(ctx context.Context, cardID, ownerID string) ([]*models.SwapRequest, error)
}
