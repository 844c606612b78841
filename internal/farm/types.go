package farm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/pointfarm/internal/model"
)

// ErrTerminate is returned by Pool.Run when the leader refresher stopped.
var ErrTerminate = errors.New("leader token refresher stopped")

// Result is why an account loop finished.
type Result int

const (
	ResultCancelled    Result = iota // pool shutting down
	ResultFailed                     // unexpected error, restarted by the monitor
	ResultDeleted                    // account removed from the store
	ResultInvalidProxy               // proxy rejected credentials and rotation is disabled
	ResultInvalidKey                 // private key cannot sign; retired, never restarted
)

func (r Result) String() string {
	switch r {
	case ResultCancelled:
		return "cancelled"
	case ResultFailed:
		return "failed"
	case ResultDeleted:
		return "deleted"
	case ResultInvalidProxy:
		return "invalid proxy"
	case ResultInvalidKey:
		return "invalid key"
	default:
		return "unknown"
	}
}

// Restartable reports whether the monitor should start the loop again.
// Only ResultFailed restarts; every other result retires the account.
func (r Result) Restartable() bool {
	return r == ResultFailed
}

// AccountStore is the part of the account store the farm uses.
type AccountStore interface {
	Get(ctx context.Context, address string) (model.Account, error)
	Update(ctx context.Context, address string, upd model.AccountUpdate) error
}

// ProxyPool hands out proxies.
type ProxyPool interface {
	Acquire(ctx context.Context) (string, error)
	Release(proxy string)
	Claim(proxy string)
}

// Runner is one connection session.
type Runner interface {
	Run(ctx context.Context) error
}

// SessionFactory builds a session for an account.
type SessionFactory func(acc model.Account, logger *slog.Logger) (Runner, error)

// Leader is the leader-only background job (the token refresher). Its return
// terminates the pool.
type Leader interface {
	Run(ctx context.Context) error
}

// Config configures a Pool.
type Config struct {
	Process                int // Worker index, used in logs
	InitialDelayMin        time.Duration
	InitialDelayMax        time.Duration
	MonitorInterval        time.Duration
	RotationDelay          time.Duration // Pause between account-loop iterations
	DrainTimeout           time.Duration
	DisableAutoProxyChange bool
	ResolveConcurrency     int // Parallel store lookups at startup
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelayMin:    30 * time.Second,
		InitialDelayMax:    60 * time.Second,
		MonitorInterval:    60 * time.Second,
		RotationDelay:      5 * time.Second,
		DrainTimeout:       30 * time.Second,
		ResolveConcurrency: 16,
	}
}

// Stats is a snapshot of the pool.
type Stats struct {
	Tasks   int // Account loops owned by the pool
	Running int // Loops not finished
	Retired int // Loops finished for good
}
