package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

type notificationRepository struct {
	db *bun.DB
}

var _ notifications.Repository = &notificationRepository{}

func NewNotificationRepository(db *bun.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	ql := logger.NewQueryLogger("create", "notifications", n.ID, n.UserID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(n).Exec(ctx); err != nil {
			return err
		}
		return publish(ctx, tx, event{feed.NotificationsTopic(n.UserID), feed.KindCreated, n.ID})
	})
	ql.Log(err, 1)
	return lookup("notifications.Create", err)
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.Notification
	err := r.db.NewSelect().
		Model(&list).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("notifications.ListForUser", err)
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.db.NewSelect().
		Model((*models.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("read = false").
		Count(ctx)
	return n, lookup("notifications.CountUnread", err)
}

// write runs q for userID's notifications and publishes one update when at
// least one row changed.
func (r *notificationRepository) write(ctx context.Context, op, kind, userID string, q func(ctx context.Context, tx bun.Tx) (int64, error)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger(op, "notifications", userID)
	var n int64
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if n, err = q(ctx, tx); err != nil || n == 0 {
			return err
		}
		return publish(ctx, tx, event{feed.NotificationsTopic(userID), kind, userID})
	})
	ql.Log(err, n)
	return int(n), err
}

func rows(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := r.write(ctx, "mark_all_read", feed.KindUpdated, userID, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rows(tx.NewUpdate().
			Model((*models.Notification)(nil)).
			Set("read = true").
			Where("user_id = ?", userID).
			Where("read = false").
			Exec(ctx))
	})
	return n, lookup("notifications.MarkAllRead", err)
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	n, err := r.write(ctx, "mark_read", feed.KindUpdated, userID, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rows(tx.NewUpdate().
			Model((*models.Notification)(nil)).
			Set("read = true").
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx))
	})
	if err == nil && n == 0 {
		return lookup("notifications.MarkRead", sql.ErrNoRows)
	}
	return lookup("notifications.MarkRead", err)
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID string) (int, error) {
	n, err := r.write(ctx, "delete_all", feed.KindDeleted, userID, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rows(tx.NewDelete().
			Model((*models.Notification)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx))
	})
	return n, lookup("notifications.DeleteAll", err)
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id string) error {
	n, err := r.write(ctx, "delete", feed.KindDeleted, userID, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rows(tx.NewDelete().
			Model((*models.Notification)(nil)).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx))
	})
	if err == nil && n == 0 {
		return lookup("notifications.Delete", sql.ErrNoRows)
	}
	return lookup("notifications.Delete", err)
}
