// Package repositories implements the domain repositories on bun.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

const (
	defaultTimeout       = 10 * time.Second
	uniqueViolation      = "23505"
	serializationFailure = "40001"
)

// lookup maps a missing row to apperr.NotFound and wraps anything else.
func lookup(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.E(apperr.NotFound, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// affected returns NotFound when a write touched no row.
func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
		return apperr.E(apperr.NotFound, op, sql.ErrNoRows)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == uniqueViolation }

func isSerializationFailure(err error) bool { return pgCode(err) == serializationFailure }

// event is queued with pg_notify inside a transaction and delivered on
// COMMIT.
type event struct {
	topic, kind, id string
}

func publish(ctx context.Context, db feed.Execer, events ...event) error {
	for _, ev := range events {
		if err := feed.Publish(ctx, db, ev.topic, ev.kind, ev.id); err != nil {
			return err
		}
	}
	return nil
}
