package counter

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by operations on a closed counter.
var ErrClosed = errors.New("counter closed")

// Counter is a process-shared integer adjusted by matched Inc/Dec pairs.
type Counter interface {
	// Inc adds one and returns the new value.
	Inc(ctx context.Context) (int64, error)

	// Dec subtracts one and returns the new value.
	Dec(ctx context.Context) (int64, error)

	// Load returns the current value.
	Load(ctx context.Context) (int64, error)

	// Close releases the handle. The shared value is left untouched.
	Close() error
}

// Local is an in-process Counter.
type Local struct {
	v atomic.Int64
}

// NewLocal creates a zeroed Local counter.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Inc(ctx context.Context) (int64, error)  { return l.v.Add(1), nil }
func (l *Local) Dec(ctx context.Context) (int64, error)  { return l.v.Add(-1), nil }
func (l *Local) Load(ctx context.Context) (int64, error) { return l.v.Load(), nil }
func (l *Local) Close() error                            { return nil }
