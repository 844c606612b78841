package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/pointfarm/internal/counter"
	"github.com/rickgao/pointfarm/internal/metrics"
)

// counterTimeout bounds counter updates made during teardown.
const counterTimeout = 5 * time.Second

// liveMark ties one increment of the shared counter to one decrement.
// mark and unmark are idempotent and safe to race.
type liveMark struct {
	counter counter.Counter
	logger  *slog.Logger
	counted atomic.Bool
}

func (l *liveMark) mark(ctx context.Context) {
	if !l.counted.CompareAndSwap(false, true) {
		return
	}
	if _, err := l.counter.Inc(ctx); err != nil {
		l.counted.Store(false)
		l.logger.Warn("failed to increment live counter", "error", err)
		return
	}
	metrics.LiveConnections.Inc()
}

func (l *liveMark) unmark(ctx context.Context) {
	if !l.counted.CompareAndSwap(true, false) {
		return
	}
	// Teardown often runs after ctx is cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), counterTimeout)
	defer cancel()

	if _, err := l.counter.Dec(ctx); err != nil {
		l.logger.Warn("failed to decrement live counter", "error", err)
	}
	metrics.LiveConnections.Dec()
}
