package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/cards"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

type cardRepository struct {
	db *bun.DB
}

var (
	_ cards.Repository = &cardRepository{}
	_ swaps.Listings   = &cardRepository{}
	_ admin.Listings   = &cardRepository{}
)

func NewCardRepository(db *bun.DB) *cardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) Create(ctx context.Context, l *models.CardListing) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("create", "card_listings", l.ID, l.UID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(l).Exec(ctx); err != nil {
			return err
		}
		return publish(ctx, tx, event{feed.ListingsTopic(), feed.KindCreated, l.ID})
	})
	ql.Log(err, 1)
	return lookup("card_listings.Create", err)
}

func (r *cardRepository) GetByID(ctx context.Context, id string) (*models.CardListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	l := new(models.CardListing)
	err := r.db.NewSelect().
		Model(l).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, lookup("card_listings.GetByID", err)
	}
	return l, nil
}

// Update writes the owner-editable columns. Owner and status belong to the
// swap engine and are never written here; a listing closed in the meantime
// is not touched.
func (r *cardRepository) Update(ctx context.Context, l *models.CardListing) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("update", "card_listings", l.ID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(l).
			ExcludeColumn("id", "uid", "status", "created_at").
			WherePK().
			Where("status = ?", models.ListingOpen).
			Exec(ctx)
		if err := affected("card_listings.Update", res, err); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return apperr.Wrap("card_listings.Update", apperr.ErrListingClosed)
			}
			return err
		}
		return publish(ctx, tx, event{feed.ListingsTopic(), feed.KindUpdated, l.ID})
	})
	ql.Log(err, 1)
	return err
}

func (r *cardRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("delete", "card_listings", id)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.CardListing)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err := affected("card_listings.Delete", res, err); err != nil {
			return err
		}
		return publish(ctx, tx, event{feed.ListingsTopic(), feed.KindDeleted, id})
	})
	ql.Log(err, 1)
	return err
}

func (r *cardRepository) ListOpen(ctx context.Context, excludeUID string, now time.Time) ([]*models.CardListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.CardListing
	q := r.db.NewSelect().
		Model(&list).
		Where("status = ?", models.ListingOpen).
		Where("expiration_date > ?", now)
	if excludeUID != "" {
		q = q.Where("uid <> ?", excludeUID)
	}
	err := q.Order("created_at DESC").Scan(ctx)
	return list, lookup("card_listings.ListOpen", err)
}

func (r *cardRepository) ListByOwner(ctx context.Context, uid string) ([]*models.CardListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.CardListing
	err := r.db.NewSelect().
		Model(&list).
		Where("uid = ?", uid).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("card_listings.ListByOwner", err)
}

func (r *cardRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.CardListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.CardListing
	err := r.db.NewSelect().
		Model(&list).
		Where("created_at >= ?", since).
		Where("status = ?", models.ListingOpen).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("card_listings.ListCreatedSince", err)
}

func (r *cardRepository) CountOwnedBy(ctx context.Context, uid string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.db.NewSelect().
		Model((*models.CardListing)(nil)).
		Where("uid = ?", uid).
		Count(ctx)
	return n, lookup("card_listings.CountOwnedBy", err)
}

func (r *cardRepository) ListAll(ctx context.Context, ascending bool) ([]*models.CardListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	order := "created_at DESC"
	if ascending {
		order = "created_at ASC"
	}
	var list []*models.CardListing
	err := r.db.NewSelect().Model(&list).Order(order).Scan(ctx)
	return list, lookup("card_listings.ListAll", err)
}
