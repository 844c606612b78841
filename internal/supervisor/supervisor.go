package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/pointfarm/internal/metrics"
)

// ErrLeaderExited is returned when worker 0 stops on its own.
var ErrLeaderExited = errors.New("leader process exited")

// Config configures a Supervisor.
type Config struct {
	Processes          int // 0 means ProcessCount(0)
	ShuffleAccounts    bool
	ShuffleSeed        int64
	LeaderPollInterval time.Duration
	StopTimeout        time.Duration // Grace period between terminate and kill
	CounterPath        string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LeaderPollInterval: time.Second,
		StopTimeout:        35 * time.Second,
	}
}

// Supervisor starts and watches the worker fleet.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	logger   *slog.Logger
	running  atomic.Int32
}

// New creates a supervisor.
func New(cfg Config, launcher Launcher, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.LeaderPollInterval <= 0 {
		cfg.LeaderPollInterval = def.LeaderPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	return &Supervisor{cfg: cfg, launcher: launcher, logger: logger}
}

// Running returns how many workers are alive.
func (s *Supervisor) Running() int {
	return int(s.running.Load())
}

// Run partitions the work, starts one worker per partition and blocks until
// ctx is cancelled (returns nil) or the leader exits (returns ErrLeaderExited).
// Either way every worker is stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context, accounts, proxies []string) error {
	if s.cfg.ShuffleAccounts {
		accounts = Shuffle(accounts, s.cfg.ShuffleSeed)
	}

	procs := ProcessCount(s.cfg.Processes)
	parts, err := Split(accounts, proxies, procs)
	if err != nil {
		return err
	}
	if len(parts) < procs {
		s.logger.Warn("fewer accounts than processes, starting fewer workers",
			"configured", procs,
			"starting", len(parts))
	}
	s.logger.Info("starting farm",
		"processes", len(parts),
		"accounts", len(accounts),
		"proxies", len(proxies))

	workers := make([]Worker, 0, len(parts))
	for _, part := range parts {
		w, err := s.launcher.Launch(ctx, Input{Partition: part, CounterPath: s.cfg.CounterPath})
		if err != nil {
			s.stopAll(workers)
			return err
		}
		workers = append(workers, w)
		s.logger.Info("started worker",
			"process", part.Index,
			"accounts", len(part.Accounts),
			"proxies", len(part.Proxies))
	}
	s.setRunning(len(workers))

	leader := workers[0]
	reported := make([]bool, len(workers))

	ticker := time.NewTicker(s.cfg.LeaderPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down workers")
			s.stopAll(workers)
			return nil
		case <-ticker.C:
		}

		if exited(leader) {
			s.logger.Error("leader process exited, terminating other processes", "error", leader.Err())
			s.stopAll(workers)
			if err := leader.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrLeaderExited, err)
			}
			return ErrLeaderExited
		}

		running := 0
		for i, w := range workers {
			if !exited(w) {
				running++
				continue
			}
			if !reported[i] {
				reported[i] = true
				s.logger.Warn("worker exited", "process", i, "error", w.Err())
			}
		}
		s.setRunning(running)
	}
}

func (s *Supervisor) setRunning(n int) {
	s.running.Store(int32(n))
	metrics.WorkersRunning.Set(float64(n))
}

// stopAll terminates every worker, waits up to StopTimeout, then kills the rest.
func (s *Supervisor) stopAll(workers []Worker) {
	for i, w := range workers {
		if err := w.Terminate(); err != nil {
			s.logger.Debug("terminate worker failed", "process", i, "error", err)
		}
	}

	deadline := time.NewTimer(s.cfg.StopTimeout)
	defer deadline.Stop()

	for i, w := range workers {
		select {
		case <-w.Done():
		case <-deadline.C:
			s.logger.Warn("worker did not stop in time, killing", "process", i)
			s.killRemaining(workers)
			s.setRunning(0)
			return
		}
	}
	s.setRunning(0)
}

func (s *Supervisor) killRemaining(workers []Worker) {
	for i, w := range workers {
		if exited(w) {
			continue
		}
		if err := w.Kill(); err != nil {
			s.logger.Debug("kill worker failed", "process", i, "error", err)
		}
		<-w.Done()
	}
}

func exited(w Worker) bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}
