package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/database"
	"github.com/rickgao/pointfarm/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	wallet_address TEXT PRIMARY KEY,
	private_key    TEXT NOT NULL,
	proxy          TEXT,
	daily_points   DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_points   DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects and creates the accounts table if needed.
func OpenPostgres(ctx context.Context, cfg config.DBConfig, appName string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := database.Connect(ctx, cfg, appName)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// Workers start together and race on the schema.
	if _, err := pool.Exec(ctx, postgresSchema); err != nil && !database.IsConcurrentCreate(err) {
		pool.Close()
		return nil, fmt.Errorf("create accounts table: %w", err)
	}

	return &Postgres{pool: pool, logger: logger.With("store", "postgres")}, nil
}

// Get returns the account for address, or ErrNotFound.
func (s *Postgres) Get(ctx context.Context, address string) (model.Account, error) {
	var (
		acc   model.Account
		proxy *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_address, private_key, proxy, daily_points, total_points, updated_at
		FROM accounts WHERE wallet_address = $1`, address,
	).Scan(&acc.WalletAddress, &acc.PrivateKey, &proxy, &acc.DailyPoints, &acc.TotalPoints, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	if proxy != nil {
		acc.Proxy = *proxy
	}
	return acc, nil
}

// Update applies the non-nil fields of upd.
func (s *Postgres) Update(ctx context.Context, address string, upd model.AccountUpdate) error {
	clause, args := setClauses(upd, func(n int) string { return "$" + strconv.Itoa(n) })
	if clause == "" {
		return nil
	}
	args = append(args, time.Now().UTC(), address)
	n := len(args)

	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET "+clause+", updated_at = $"+strconv.Itoa(n-1)+
			" WHERE wallet_address = $"+strconv.Itoa(n), args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts accounts, refreshing the private key of existing rows.
// Proxies and points of existing rows are preserved.
func (s *Postgres) Upsert(ctx context.Context, accounts []model.Account) error {
	batch := &pgx.Batch{}
	for _, acc := range accounts {
		batch.Queue(`
			INSERT INTO accounts (wallet_address, private_key, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (wallet_address) DO UPDATE SET private_key = EXCLUDED.private_key`,
			acc.WalletAddress, acc.PrivateKey, time.Now().UTC())
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert accounts: %w", err)
	}
	s.logger.Debug("upserted accounts", "count", len(accounts))
	return nil
}

// ClearProxies drops every proxy assignment and returns the number of rows changed.
func (s *Postgres) ClearProxies(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET proxy = NULL, updated_at = $1 WHERE proxy IS NOT NULL`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear proxies: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
