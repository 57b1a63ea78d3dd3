package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/swapcard/marketplace/backend"
	"github.com/swapcard/marketplace/backend/handlers"
	"github.com/swapcard/marketplace/backend/services"
	"github.com/swapcard/marketplace/internal/domain/accounts"
	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/domain/cards"
	"github.com/swapcard/marketplace/internal/domain/chat"
	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/domain/ratings"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database"
	"github.com/swapcard/marketplace/internal/gateways/database/repositories"
	"github.com/swapcard/marketplace/internal/gateways/feed"
	"github.com/swapcard/marketplace/internal/gateways/idempotency"
	"github.com/swapcard/marketplace/internal/gateways/mailer"
	"github.com/swapcard/marketplace/internal/gateways/storage"
	"github.com/swapcard/marketplace/swapcard"
	"github.com/swapcard/marketplace/swapcard/logger"
)

const shutdownTimeout = 15 * time.Second

var sweepInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Hour, "how often to deny stale requests, 0 disables")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	logger.LogSystem("Starting "+swapcard.Name,
		slog.String("version", swapcard.Version),
		slog.String("address", cfg.Web.Addr()))

	dbStart := time.Now()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.InitializeSchema(ctx); err != nil {
		return err
	}
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.Duration("took", time.Since(dbStart)))

	images, err := storage.NewSpacesService(ctx, storage.Options{
		Key:       cfg.Spaces.Key,
		Secret:    cfg.Spaces.Secret,
		Region:    cfg.Spaces.Region,
		Bucket:    cfg.Spaces.Bucket,
		Endpoint:  cfg.Spaces.Endpoint,
		PublicURL: cfg.Spaces.PublicURL,
		Root:      cfg.Spaces.CardRoot,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	keys, err := idempotency.Open(cfg.Idempotency.Path, cfg.Idempotency.TTL.Duration, cfg.Idempotency.Lease.Duration)
	if err != nil {
		return err
	}
	defer keys.Close()

	hub := feed.NewHub(db.Pool())
	w, err := newWebApp(db, images, newMailer(), keys, hub)
	if err != nil {
		return err
	}
	defer w.fanout.Wait()
	app := backend.NewApp(cfg.Web, w.webApp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Listen(cfg.Web.Addr()); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.LogSystem("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		maintainEvery(gctx, sweepInterval, w.sweeper, keys)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.LogSystem("Server shutdown complete")
	return nil
}

func newMailer() *mailer.Client {
	return mailer.New(mailer.Options{
		BaseURL:          cfg.Mailer.BaseURL,
		VerificationPath: cfg.Mailer.VerificationPath,
		NotificationPath: cfg.Mailer.NotificationPath,
		Timeout:          cfg.Mailer.Timeout.Duration,
		Disabled:         cfg.Mailer.Disabled,
	})
}

// wiring is what serve needs besides the routes: the sweeper for the
// maintenance loop and the fanout to drain on shutdown.
type wiring struct {
	webApp  *handlers.WebApp
	sweeper Sweeper
	fanout  *notifications.Fanout
}

func newWebApp(db *database.DB, images *storage.SpacesService, mail *mailer.Client, keys *idempotency.Store, hub *feed.Hub) (*wiring, error) {
	bunDB := db.BunDB()

	users, err := repositories.NewCachedUsers(repositories.NewUserRepository(bunDB), 0)
	if err != nil {
		return nil, err
	}
	cardRepo := repositories.NewCardRepository(bunDB)
	swapRepo := repositories.NewSwapRepository(bunDB)
	notificationRepo := repositories.NewNotificationRepository(bunDB)

	fanout := notifications.NewFanout(notificationRepo, mail)
	cardService := cards.NewService(cardRepo, images, users, swapRepo,
		cfg.Market.ListingTTL.Duration, cfg.Market.RecentWindow.Duration)
	swapService := swaps.NewService(swapRepo, cardRepo, users, fanout, keys)

	webApp := &handlers.WebApp{
		DB:            db,
		Sessions:      services.NewSessionService(cfg.Web),
		Accounts:      accounts.NewService(users, images, mail, cfg.Market.Phone(), cfg.Web.SessionTTL.Duration),
		Cards:         cardService,
		Swaps:         swapService,
		Ratings:       ratings.NewService(repositories.NewRatingRepository(bunDB), users, cfg.Market.RatingMin, cfg.Market.RatingMax),
		Notifications: notifications.NewService(notificationRepo),
		Chats:         chat.NewService(repositories.NewChatRepository(bunDB), users),
		Admin:         admin.NewService(users, cardRepo, cardService, swapRepo, repositories.NewStatsRepository(bunDB), mail),
		Streams:       hub,
		Version:       swapcard.Version,
	}
	return &wiring{webApp: webApp, sweeper: swapService, fanout: fanout}, nil
}
