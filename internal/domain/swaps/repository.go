package swaps

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"
	"time"

	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Repository stores requests and applies decisions. Accept must apply the
// whole decision atomically, re-checking request status and both listings
// under lock, or not at all.
type Repository interface {
	CreateRequest(ctx context.Context, req *models.SwapRequest) error
	GetRequest(ctx context.Context, id string) (*models.SwapRequest, error)
	FindPending(ctx context.Context, requesterCardID, receiverCardID string) (*models.SwapRequest, error)
	ListIncoming(ctx context.Context, receiverID string) ([]*models.SwapRequest, error)
	ListOutgoing(ctx context.Context, requesterID string) ([]*models.SwapRequest, error)
	ListForCard(ctx context.Context, cardID, ownerID string) ([]*models.SwapRequest, error)
	ListStalePending(ctx context.Context) ([]*models.SwapRequest, error)
	Accept(ctx context.Context, d models.SwapDecision) (*models.SwapTransaction, error)
	Deny(ctx context.Context, id string, at time.Time) (*models.SwapRequest, error)
	ListTransactionsFor(ctx context.Context, userID string) ([]*models.SwapTransaction, error)
}

type Listings interface {
	GetByID(ctx context.Context, id string) (*models.CardListing, error)
	CountOwnedBy(ctx context.Context, uid string) (int, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notifications.Event)
}

// KeyStore remembers idempotency keys. payload describes the request a
// key was first used for.
type KeyStore interface {
	Claim(scope, key, payload string) (string, bool, error)
	Complete(scope, key, value string) error
	Release(scope, key string) error
}
