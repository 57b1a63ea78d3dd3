package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const totalsQuery = `SELECT
	(SELECT COUNT(*) FROM users) AS users,
	(SELECT COUNT(*) FROM users WHERE is_verified) AS verified_users,
	(SELECT COUNT(*) FROM card_listings) AS listings,
	(SELECT COUNT(*) FROM card_listings WHERE status = 'open') AS open_listings,
	(SELECT COUNT(*) FROM swap_requests WHERE status = 'pending') AS pending_requests,
	(SELECT COUNT(*) FROM swap_transactions) AS transactions,
	(SELECT COUNT(*) FROM ratings) AS ratings`

type statsRepository struct {
	db *bun.DB
}

var _ admin.Stats = &statsRepository{}

func NewStatsRepository(db *bun.DB) *statsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) Totals(ctx context.Context) (*models.MarketTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("totals", "stats")
	totals := new(models.MarketTotals)
	err := r.db.NewRaw(totalsQuery).Scan(ctx, totals)
	ql.Log(err, 1)
	if err != nil {
		return nil, lookup("stats.Totals", err)
	}
	return totals, nil
}
