package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

const maxTxAttempts = 3

type swapRepository struct {
	db *bun.DB
}

var (
	_ swaps.Repository   = &swapRepository{}
	_ admin.Transactions = &swapRepository{}
)

func NewSwapRepository(db *bun.DB) *swapRepository {
	return &swapRepository{db: db}
}

func (r *swapRepository) CreateRequest(ctx context.Context, req *models.SwapRequest) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("create", "swap_requests", req.ID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(req).Exec(ctx); err != nil {
			return err
		}
		return publish(ctx, tx, event{feed.SwapRequestsTopic(req.ReceiverID), feed.KindCreated, req.ID})
	})
	ql.Log(err, 1)
	if isUniqueViolation(err) {
		return apperr.E(apperr.Conflict, "swap_requests.Create", errors.New("a pending request for these cards already exists"))
	}
	return lookup("swap_requests.Create", err)
}

func (r *swapRepository) GetRequest(ctx context.Context, id string) (*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req := new(models.SwapRequest)
	if err := r.db.NewSelect().Model(req).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("swap_requests.GetRequest", err)
	}
	return req, nil
}

func (r *swapRepository) FindPending(ctx context.Context, requesterCardID, receiverCardID string) (*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req := new(models.SwapRequest)
	err := r.db.NewSelect().
		Model(req).
		Where("requester_card_id = ?", requesterCardID).
		Where("receiver_card_id = ?", receiverCardID).
		Where("status = ?", models.SwapPending).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, lookup("swap_requests.FindPending", err)
	}
	return req, nil
}

func (r *swapRepository) list(ctx context.Context, op, column, value string) ([]*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.SwapRequest
	err := r.db.NewSelect().
		Model(&list).
		Where("? = ?", bun.Ident(column), value).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup(op, err)
}

func (r *swapRepository) ListIncoming(ctx context.Context, receiverID string) ([]*models.SwapRequest, error) {
	return r.list(ctx, "swap_requests.ListIncoming", "receiver_id", receiverID)
}

func (r *swapRepository) ListOutgoing(ctx context.Context, requesterID string) ([]*models.SwapRequest, error) {
	return r.list(ctx, "swap_requests.ListOutgoing", "requester_id", requesterID)
}

// ListForCard lists requests for cardID made to ownerID. Offers sent to a
// previous owner stay hidden after the card changes hands.
func (r *swapRepository) ListForCard(ctx context.Context, cardID, ownerID string) ([]*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.SwapRequest
	err := r.db.NewSelect().
		Model(&list).
		Where("receiver_card_id = ?", cardID).
		Where("receiver_id = ?", ownerID).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("swap_requests.ListForCard", err)
}

// ListStalePending finds pending requests that reference a missing or
// closed listing, or whose target listing has expired.
func (r *swapRepository) ListStalePending(ctx context.Context) ([]*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.SwapRequest
	err := r.db.NewSelect().
		Model(&list).
		Join("LEFT JOIN card_listings AS offer ON offer.id = sr.requester_card_id").
		Join("LEFT JOIN card_listings AS target ON target.id = sr.receiver_card_id").
		Where("sr.status = ?", models.SwapPending).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("offer.id IS NULL").
				WhereOr("target.id IS NULL").
				WhereOr("offer.status <> ?", models.ListingOpen).
				WhereOr("target.status <> ?", models.ListingOpen).
				WhereOr("target.expiration_date <= ?", time.Now())
		}).
		Order("sr.created_at ASC").
		Scan(ctx)
	return list, lookup("swap_requests.ListStalePending", err)
}

// Accept applies d in one serializable transaction. The request and both
// listings are re-read FOR UPDATE and must still match what the decision
// was planned against; otherwise nothing is written.
func (r *swapRepository) Accept(ctx context.Context, d models.SwapDecision) (*models.SwapTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("accept", "swap_requests", d.RequestID, d.TransactionID)
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	var (
		out *models.SwapTransaction
		err error
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			var aerr error
			out, aerr = r.accept(ctx, tx, d)
			return aerr
		})
		if !isSerializationFailure(err) {
			break
		}
		slog.Warn("Swap acceptance conflicted, retrying",
			slog.String("type", "db"),
			slog.String("request_id", d.RequestID),
			slog.Int("attempt", attempt))
	}
	ql.Log(err, 1)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *swapRepository) accept(ctx context.Context, tx bun.Tx, d models.SwapDecision) (*models.SwapTransaction, error) {
	req := new(models.SwapRequest)
	err := tx.NewSelect().Model(req).Where("id = ?", d.RequestID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, apperr.ErrAlreadyDecided
	}

	var listings []*models.CardListing
	err = tx.NewSelect().
		Model(&listings).
		Where("id IN (?)", bun.In([]string{d.RequesterCardID, d.ReceiverCardID})).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.CardListing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	requesterCard, receiverCard := byID[d.RequesterCardID], byID[d.ReceiverCardID]
	if requesterCard == nil || receiverCard == nil {
		return nil, apperr.ErrCardMissing
	}
	if !requesterCard.IsOpen() || !receiverCard.IsOpen() ||
		requesterCard.UID != d.RequesterID || receiverCard.UID != d.ReceiverID {
		return nil, apperr.ErrListingClosed
	}

	record := swaps.ApplyAccept(d, req, requesterCard, receiverCard)

	if _, err := tx.NewUpdate().Model(req).Column("status", "decided_at").WherePK().Exec(ctx); err != nil {
		return nil, err
	}
	for _, l := range []*models.CardListing{requesterCard, receiverCard} {
		if _, err := tx.NewUpdate().Model(l).Column("uid", "status", "updated_at").WherePK().Exec(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	err = publish(ctx, tx,
		event{feed.ListingsTopic(), feed.KindUpdated, requesterCard.ID},
		event{feed.ListingsTopic(), feed.KindUpdated, receiverCard.ID},
		event{feed.SwapRequestsTopic(req.RequesterID), feed.KindUpdated, req.ID},
		event{feed.SwapRequestsTopic(req.ReceiverID), feed.KindUpdated, req.ID},
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Deny flips a pending request to denied. It never touches a request that
// has already been decided.
func (r *swapRepository) Deny(ctx context.Context, id string, at time.Time) (*models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("deny", "swap_requests", id)
	req := new(models.SwapRequest)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(req).
			Set("status = ?", models.SwapDenied).
			Set("decided_at = ?", at).
			Where("id = ?", id).
			Where("status = ?", models.SwapPending).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().Model((*models.SwapRequest)(nil)).Where("id = ?", id).Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return apperr.ErrRequestNotFound
			}
			return apperr.ErrAlreadyDecided
		}
		return publish(ctx, tx,
			event{feed.SwapRequestsTopic(req.RequesterID), feed.KindUpdated, id},
			event{feed.SwapRequestsTopic(req.ReceiverID), feed.KindUpdated, id},
		)
	})
	ql.Log(err, 1)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *swapRepository) ListTransactionsFor(ctx context.Context, userID string) ([]*models.SwapTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.SwapTransaction
	err := r.db.NewSelect().
		Model(&list).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("requester_id = ?", userID).WhereOr("receiver_id = ?", userID)
		}).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("swap_transactions.ListFor", err)
}

func (r *swapRepository) ListAllTransactions(ctx context.Context) ([]*models.SwapTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.SwapTransaction
	err := r.db.NewSelect().Model(&list).Order("created_at DESC").Scan(ctx)
	return list, lookup("swap_transactions.ListAll", err)
}
