package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/repositories"
	"github.com/swapcard/marketplace/internal/gateways/idempotency"
)

// Sweeper is the part of the swap service the maintenance loop needs.
type Sweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deny stale swap requests and purge expired idempotency keys once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		keys, err := idempotency.Open(cfg.Idempotency.Path, cfg.Idempotency.TTL.Duration, cfg.Idempotency.Lease.Duration)
		if err != nil {
			return err
		}
		defer keys.Close()

		bunDB := db.BunDB()
		swapRepo := repositories.NewSwapRepository(bunDB)
		fanout := notifications.NewFanout(repositories.NewNotificationRepository(bunDB), newMailer())
		svc := swaps.NewService(swapRepo, repositories.NewCardRepository(bunDB), repositories.NewUserRepository(bunDB), fanout, keys)
		defer fanout.Wait()
		return maintain(ctx, svc, keys)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func maintain(ctx context.Context, sweeper Sweeper, keys *idempotency.Store) error {
	denied, err := sweeper.SweepStale(ctx)
	if err != nil {
		return err
	}
	purged, err := keys.Purge()
	if err != nil {
		return err
	}
	slog.Info("Maintenance completed",
		slog.String("type", "swap"),
		slog.Int("denied", denied),
		slog.Int("purged_keys", purged))
	return nil
}

// maintainEvery runs maintain on every tick until ctx ends.
func maintainEvery(ctx context.Context, interval time.Duration, sweeper Sweeper, keys *idempotency.Store) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := maintain(ctx, sweeper, keys); err != nil && ctx.Err() == nil {
				slog.Error("Maintenance failed",
					slog.String("type", "swap"),
					slog.Any("error", err))
			}
		}
	}
}
