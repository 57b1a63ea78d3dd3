package accounts

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
)

type Repository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

type PhotoStore interface {
	Put(ctx context.Context, obj storage.Object) (string, error)
	Delete(ctx context.Context, key string) error
}

type Verifier interface {
	SendVerification(ctx context.Context, displayName, email string) error
}
