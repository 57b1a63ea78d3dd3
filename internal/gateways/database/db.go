package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/swapcard"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	schemaVersion        = 5 // bump when tables or indexes change
)

// DB owns both handles onto the same database: pgxpool for LISTEN/NOTIFY
// and raw statements, bun for the repositories.
type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg swapcard.DBConfig) (*DB, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		var conn net.Conn
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			conn.Close()
			break
		}
		slog.Warn("Database not reachable yet",
			slog.String("type", "db"),
			slog.String("addr", addr),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime.Duration > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime.Duration
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN())))
	if cfg.PoolSize > 0 {
		sqldb.SetMaxOpenConns(cfg.PoolSize)
	}
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime.Duration)

	return &DB{pool: pool, bunDB: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (db *DB) Pool() *pgxpool.Pool { return db.pool }

func (db *DB) BunDB() *bun.DB { return db.bunDB }

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping pool: %w", err)
	}
	if err := db.bunDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping bun: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := db.pool.Exec(ctx, sql, args...)
	attrs := []any{
		slog.String("type", "db"),
		slog.String("operation", "exec"),
		slog.String("query", sql),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
	}
	if err != nil {
		slog.Error("Query failed", append(attrs, slog.Any("error", err))...)
		return tag, err
	}
	slog.Debug("Query executed", append(attrs, slog.Int64("affected_rows", tag.RowsAffected()))...)
	return tag, nil
}

// Tables lists every model in creation order.
func Tables() []any {
	return []any{
		(*models.User)(nil),
		(*models.CardListing)(nil),
		(*models.SwapRequest)(nil),
		(*models.SwapTransaction)(nil),
		(*models.Rating)(nil),
		(*models.Notification)(nil),
		(*models.Conversation)(nil),
		(*models.Message)(nil),
	}
}

var schemaStatements = []string{
	"CREATE INDEX IF NOT EXISTS idx_card_listings_uid ON card_listings(uid);",
	"CREATE INDEX IF NOT EXISTS idx_card_listings_browse ON card_listings(created_at DESC) WHERE status = 'open';",
	"CREATE INDEX IF NOT EXISTS idx_card_listings_expiration ON card_listings(expiration_date);",
	"CREATE INDEX IF NOT EXISTS idx_swap_requests_receiver ON swap_requests(receiver_id, created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_swap_requests_requester ON swap_requests(requester_id, created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_swap_requests_cards ON swap_requests(receiver_card_id, requester_card_id);",
	"CREATE INDEX IF NOT EXISTS idx_swap_requests_pending ON swap_requests(status) WHERE status = 'pending';",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_swap_requests_pending_pair ON swap_requests(requester_card_id, receiver_card_id) WHERE status = 'pending';",
	"CREATE INDEX IF NOT EXISTS idx_swap_transactions_requester ON swap_transactions(requester_id);",
	"CREATE INDEX IF NOT EXISTS idx_swap_transactions_receiver ON swap_transactions(receiver_id);",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_ratings_transaction_rater ON ratings(transaction_id, rater_user_id);",
	"CREATE INDEX IF NOT EXISTS idx_ratings_rated ON ratings(rated_user_id, created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id) WHERE read = false;",
	"ALTER TABLE conversations ADD COLUMN IF NOT EXISTS pair_key TEXT;",
	"UPDATE conversations SET pair_key = LEAST(participant_ids[1], participant_ids[2]) || '|' || GREATEST(participant_ids[1], participant_ids[2]) WHERE pair_key IS NULL AND cardinality(participant_ids) = 2;",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair ON conversations(pair_key);",
	"CREATE INDEX IF NOT EXISTS idx_conversations_participants ON conversations USING GIN (participant_ids);",
	"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);",
}

// InitializeSchema creates all tables and indexes. It is a no-op when the
// stored schema version already matches.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if err := db.ensureAppMeta(ctx); err != nil {
		return err
	}
	if v, err := db.getAppMeta(ctx, "schema_version"); err == nil && v == strconv.Itoa(schemaVersion) {
		slog.Info("Schema up-to-date, skipping initialization",
			slog.String("type", "db"),
			slog.Int("schema_version", schemaVersion))
		return nil
	}

	for _, model := range Tables() {
		if _, err := db.bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecWithLog(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	if err := db.setAppMeta(ctx, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return err
	}

	slog.Info("Database schema initialized",
		slog.String("type", "db"),
		slog.Int("schema_version", schemaVersion),
		slog.Int("tables", len(Tables())),
		slog.Int("statements", len(schemaStatements)))
	return nil
}

func (db *DB) ensureAppMeta(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS app_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create app_meta: %w", err)
	}
	return nil
}

func (db *DB) getAppMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.pool.QueryRow(ctx, `SELECT value FROM app_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read app_meta %s: %w", key, err)
	}
	return value, nil
}

func (db *DB) setAppMeta(ctx context.Context, key, value string) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO app_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write app_meta %s: %w", key, err)
	}
	return nil
}
