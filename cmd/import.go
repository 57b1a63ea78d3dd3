package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swapcard/marketplace/internal/gateways/legacy"
)

var (
	importMongoURI  string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy the legacy document store into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		uri := cfg.Legacy.MongoURI
		if importMongoURI != "" {
			uri = importMongoURI
		}
		if uri == "" {
			return errors.New("legacy.mongo_uri or --mongo-uri is required")
		}

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.InitializeSchema(ctx); err != nil {
			return err
		}

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}()

		importer := legacy.NewImporter(client.Database(cfg.Legacy.Database), db.BunDB())
		importer.SetBatchSize(importBatchSize)

		start := time.Now()
		stats, err := importer.Run(ctx)
		for _, s := range stats {
			slog.Info("Collection imported",
				slog.String("type", "db"),
				slog.String("collection", s.Collection),
				slog.Int("read", s.Read),
				slog.Int("imported", s.Imported),
				slog.Int("skipped", s.Skipped),
				slog.Int("invalid", s.Invalid))
		}
		if err != nil {
			return err
		}
		slog.Info("Legacy import completed",
			slog.String("type", "db"),
			slog.Duration("took", time.Since(start)))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importMongoURI, "mongo-uri", "", "legacy store URI, overrides legacy.mongo_uri")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "rows per insert")
	rootCmd.AddCommand(importCmd)
}
