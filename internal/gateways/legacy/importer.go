package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const defaultBatchSize = 500

// Stats counts what happened to one collection. Skipped rows already
// existed in the target; Invalid rows failed validation and were not
// written.
type Stats struct {
	Collection string
	Read       int
	Imported   int
	Skipped    int
	Invalid    int
}

type Importer struct {
	src       *mongo.Database
	dst       *bun.DB
	batchSize int

	// participants of every transaction seen so far, to derive rating roles
	transactions map[string]*models.SwapTransaction
}

func NewImporter(src *mongo.Database, dst *bun.DB) *Importer {
	return &Importer{
		src:          src,
		dst:          dst,
		batchSize:    defaultBatchSize,
		transactions: make(map[string]*models.SwapTransaction),
	}
}

func (im *Importer) SetBatchSize(size int) {
	if size > 0 {
		im.batchSize = size
	}
}

// Run imports every collection in dependency order. It is safe to run
// again: rows that already exist are left alone.
func (im *Importer) Run(ctx context.Context) ([]Stats, error) {
	steps := []func(context.Context) (*Stats, error){
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "users", DecodeUser, nil)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "postCards", DecodeListing, nil)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "swapRequests", DecodeRequest, nil)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "swapTransactions", DecodeTransaction, im.rememberTransaction)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "ratings", DecodeRating, im.resolveRole)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "notifications", DecodeNotification, nil)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "conversations", DecodeConversation, nil)
		},
		func(ctx context.Context) (*Stats, error) {
			return importCollection(ctx, im, "messages", DecodeMessage, nil)
		},
	}

	report := make([]Stats, 0, len(steps))
	for _, step := range steps {
		stats, err := step(ctx)
		if stats != nil {
			report = append(report, *stats)
		}
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func importCollection[T any](
	ctx context.Context,
	im *Importer,
	name string,
	decode func(bson.M) (*T, error),
	prepare func(context.Context, *T) error,
) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Collection: name}

	cur, err := im.src.Collection(name).Find(ctx, bson.D{})
	if err != nil {
		return stats, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer cur.Close(ctx)

	batch := make([]*T, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := im.dst.NewInsert().Model(&batch).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert %s batch: %w", name, err)
		}
		n, _ := res.RowsAffected()
		stats.Imported += int(n)
		stats.Skipped += len(batch) - int(n)
		batch = batch[:0]
		return nil
	}

	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return stats, fmt.Errorf("failed to read %s document: %w", name, err)
		}
		stats.Read++

		v, err := decode(raw)
		if err == nil && prepare != nil {
			err = prepare(ctx, v)
		}
		if err != nil {
			if apperr.Is(err, apperr.Validation) {
				stats.Invalid++
				slog.Warn("Skipping invalid legacy document",
					slog.String("type", "db"),
					slog.String("collection", name),
					slog.String("error", err.Error()))
				continue
			}
			return stats, err
		}

		batch = append(batch, v)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return stats, fmt.Errorf("cursor over %s failed: %w", name, err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	slog.Info("Imported legacy collection",
		slog.String("type", "db"),
		slog.String("collection", name),
		slog.Int("read", stats.Read),
		slog.Int("imported", stats.Imported),
		slog.Int("skipped", stats.Skipped),
		slog.Int("invalid", stats.Invalid),
		slog.Duration("took", time.Since(start)))
	return stats, nil
}

func (im *Importer) rememberTransaction(_ context.Context, t *models.SwapTransaction) error {
	im.transactions[t.ID] = t
	return nil
}

// resolveRole fills a rating's role from the rater's place in the
// transaction, looking the transaction up in the target when it was
// imported by an earlier run.
func (im *Importer) resolveRole(ctx context.Context, r *models.Rating) error {
	t, ok := im.transactions[r.TransactionID]
	if !ok {
		t = new(models.SwapTransaction)
		err := im.dst.NewSelect().Model(t).Where("id = ?", r.TransactionID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fieldError("ratings", r.ID, "transactionId", "references an unknown transaction")
		}
		if err != nil {
			return fmt.Errorf("failed to load transaction %s: %w", r.TransactionID, err)
		}
		im.transactions[t.ID] = t
	}
	return applyRole(t, r)
}

func applyRole(t *models.SwapTransaction, r *models.Rating) error {
	role, ok := t.RoleOf(r.RaterUserID)
	if !ok {
		return fieldError("ratings", r.ID, "raterUserId", "is not a participant of the transaction")
	}
	if r.Role != "" && r.Role != role {
		return fieldError("ratings", r.ID, "role", fmt.Sprintf("is %s but the rater was the %s", r.Role, role))
	}
	if r.RatedUserID != t.Counterparty(role) {
		return fieldError("ratings", r.ID, "ratedUserId", "is not the rater's counterparty")
	}
	r.Role = role
	return nil
}
