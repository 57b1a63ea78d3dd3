package admin

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"

	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

type Users interface {
	List(ctx context.Context) ([]*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetVerified(ctx context.Context, id string, verified bool) (*models.User, error)
}

type Listings interface {
	ListAll(ctx context.Context, ascending bool) ([]*models.CardListing, error)
}

// CardRemover deletes a listing together with its image.
type CardRemover interface {
	Delete(ctx context.Context, sess *session.Session, id string) error
}

type Transactions interface {
	ListAllTransactions(ctx context.Context) ([]*models.SwapTransaction, error)
}

type Stats interface {
	Totals(ctx context.Context) (*models.MarketTotals, error)
}

type Verifier interface {
	SendVerification(ctx context.Context, displayName, email string) error
}
