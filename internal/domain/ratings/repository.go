package ratings

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Repository persists ratings. Submit inserts the rating and flips the
// rater's flag on the transaction in one transaction, failing with
// apperr.ErrAlreadyRated when the flag is already set.
type Repository interface {
	GetTransaction(ctx context.Context, id string) (*models.SwapTransaction, error)
	Submit(ctx context.Context, r *models.Rating) error
	ListForRated(ctx context.Context, userID string) ([]*models.Rating, error)
	Summary(ctx context.Context, userID string) (*models.RatingSummary, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
