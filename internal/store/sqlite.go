package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rickgao/pointfarm/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	wallet_address TEXT PRIMARY KEY,
	private_key    TEXT NOT NULL,
	proxy          TEXT,
	daily_points   REAL NOT NULL DEFAULT 0,
	total_points   REAL NOT NULL DEFAULT 0,
	updated_at     TIMESTAMP NOT NULL
)`

// SQLite is a Store backed by a local database file shared by all workers.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("store", "sqlite")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas below are per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	// Several worker processes write the same file.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		logger.Warn("failed to enable WAL", "error", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		logger.Warn("failed to set busy timeout", "error", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create accounts table: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Get returns the account for address, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, address string) (model.Account, error) {
	var (
		acc   model.Account
		proxy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, private_key, proxy, daily_points, total_points, updated_at
		FROM accounts WHERE wallet_address = ?`, address,
	).Scan(&acc.WalletAddress, &acc.PrivateKey, &proxy, &acc.DailyPoints, &acc.TotalPoints, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	acc.Proxy = proxy.String
	return acc, nil
}

// Update applies the non-nil fields of upd.
func (s *SQLite) Update(ctx context.Context, address string, upd model.AccountUpdate) error {
	clause, args := setClauses(upd, func(int) string { return "?" })
	if clause == "" {
		return nil
	}
	args = append(args, time.Now().UTC(), address)

	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET "+clause+", updated_at = ? WHERE wallet_address = ?", args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts accounts in one transaction, refreshing the private key of
// existing rows.
func (s *SQLite) Upsert(ctx context.Context, accounts []model.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (wallet_address, private_key, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (wallet_address) DO UPDATE SET private_key = excluded.private_key`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, acc := range accounts {
		if _, err := stmt.ExecContext(ctx, acc.WalletAddress, acc.PrivateKey, now); err != nil {
			return fmt.Errorf("upsert %s: %w", acc.WalletAddress, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Debug("upserted accounts", "count", len(accounts))
	return nil
}

// ClearProxies drops every proxy assignment and returns the number of rows changed.
func (s *SQLite) ClearProxies(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET proxy = NULL, updated_at = ? WHERE proxy IS NOT NULL`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear proxies: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
