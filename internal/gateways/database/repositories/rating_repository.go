package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/domain/ratings"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

type ratingRepository struct {
	db *bun.DB
}

var _ ratings.Repository = &ratingRepository{}

func NewRatingRepository(db *bun.DB) *ratingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) GetTransaction(ctx context.Context, id string) (*models.SwapTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx := new(models.SwapTransaction)
	if err := r.db.NewSelect().Model(tx).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("swap_transactions.Get", err)
	}
	return tx, nil
}

// Submit locks the transaction row, so two ratings by the same party
// cannot both see the flag unset.
func (r *ratingRepository) Submit(ctx context.Context, rating *models.Rating) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("submit", "ratings", rating.TransactionID, rating.RaterUserID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		st := new(models.SwapTransaction)
		err := tx.NewSelect().Model(st).Where("id = ?", rating.TransactionID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if st.RatedBy(rating.Role) {
			return apperr.ErrAlreadyRated
		}

		if _, err := tx.NewInsert().Model(rating).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model(st).
			Set("? = true", bun.Ident(models.RatedColumn(rating.Role))).
			WherePK().
			Exec(ctx)
		return err
	})
	ql.Log(err, 1)
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyRated
	}
	return lookup("ratings.Submit", err)
}

func (r *ratingRepository) ListForRated(ctx context.Context, userID string) ([]*models.Rating, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.Rating
	err := r.db.NewSelect().
		Model(&list).
		Where("rated_user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("ratings.ListForRated", err)
}

func (r *ratingRepository) Summary(ctx context.Context, userID string) (*models.RatingSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	sum := &models.RatingSummary{UserID: userID}
	err := r.db.NewSelect().
		Model((*models.Rating)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(AVG(rating), 0)").
		Where("rated_user_id = ?", userID).
		Scan(ctx, &sum.Count, &sum.Average)
	if err != nil {
		return nil, lookup("ratings.Summary", err)
	}
	return sum, nil
}
