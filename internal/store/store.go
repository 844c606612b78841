package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/model"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// Store is the account persistence boundary used by the farm.
type Store interface {
	Get(ctx context.Context, address string) (model.Account, error)
	Update(ctx context.Context, address string, upd model.AccountUpdate) error
	Upsert(ctx context.Context, accounts []model.Account) error
	ClearProxies(ctx context.Context) (int64, error)
	Close() error
}

// Open connects to the configured backend and makes sure the schema exists.
// appName is passed to Postgres as application_name.
func Open(ctx context.Context, cfg config.StoreConfig, appName string, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.Postgres, appName, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite":
		lite, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// setClauses renders the SET list for an update. placeholder formats the
// n-th (1-based) bind parameter for the backend.
func setClauses(upd model.AccountUpdate, placeholder func(int) string) (string, []any) {
	var (
		clause string
		args   []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		if clause != "" {
			clause += ", "
		}
		clause += col + " = " + placeholder(len(args))
	}

	if upd.Proxy != nil {
		if *upd.Proxy == "" {
			add("proxy", nil)
		} else {
			add("proxy", *upd.Proxy)
		}
	}
	if upd.DailyPoints != nil {
		add("daily_points", *upd.DailyPoints)
	}
	if upd.TotalPoints != nil {
		add("total_points", *upd.TotalPoints)
	}
	return clause, args
}
