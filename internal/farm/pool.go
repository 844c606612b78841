package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pointfarm/internal/counter"
	"github.com/rickgao/pointfarm/internal/metrics"
	"github.com/rickgao/pointfarm/internal/model"
	"github.com/rickgao/pointfarm/internal/store"
)

// Deps are the collaborators of a Pool. Leader and Counter may be nil.
type Deps struct {
	Store      AccountStore
	Proxies    ProxyPool
	NewSession SessionFactory
	Leader     Leader
	Counter    counter.Counter
}

// Pool owns the account loops of one worker process.
type Pool struct {
	cfg        Config
	store      AccountStore
	proxies    ProxyPool
	newSession SessionFactory
	leader     Leader
	live       counter.Counter
	logger     *slog.Logger

	mu    sync.Mutex
	tasks []*task
	wg    sync.WaitGroup
}

type task struct {
	address string
	run     *taskRun
	retired bool
}

// taskRun is one execution of an account loop. result is valid once done is closed.
type taskRun struct {
	done   chan struct{}
	result Result
}

// NewPool creates a pool.
func NewPool(cfg Config, deps Deps, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = DefaultConfig().ResolveConcurrency
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultConfig().MonitorInterval
	}

	return &Pool{
		cfg:        cfg,
		store:      deps.Store,
		proxies:    deps.Proxies,
		newSession: deps.NewSession,
		leader:     deps.Leader,
		live:       deps.Counter,
		logger:     logger.With("process", cfg.Process),
	}
}

// Run farms the given accounts until ctx is cancelled or the leader job
// stops. It returns nil on cancellation and ErrTerminate when the leader
// job ended.
func (p *Pool) Run(ctx context.Context, addresses []string) error {
	accounts, err := p.resolve(ctx, addresses)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if len(accounts) == 0 {
		p.logger.Warn("no accounts to farm in this process")
	}

	for _, acc := range accounts {
		if acc.Proxy != "" {
			p.proxies.Claim(acc.Proxy)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var leaderDone chan error
	if p.leader != nil {
		leaderDone = make(chan error, 1)
		go func() {
			leaderDone <- p.leader.Run(runCtx)
		}()
		p.logger.Info("leader token refresher started")
	}

	p.mu.Lock()
	for _, acc := range accounts {
		t := &task{address: acc.WalletAddress}
		p.tasks = append(p.tasks, t)
		p.start(runCtx, t)
	}
	p.mu.Unlock()
	metrics.AccountTasks.Set(float64(len(accounts)))

	p.logger.Info("farming started", "accounts", len(accounts))

	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain(cancel)
			return nil
		case lerr := <-leaderDone:
			if ctx.Err() != nil {
				p.drain(cancel)
				return nil
			}
			p.logger.Error("token refresher stopped, terminating farm", "error", lerr)
			p.drain(cancel)
			if lerr != nil {
				return fmt.Errorf("%w: %w", ErrTerminate, lerr)
			}
			return ErrTerminate
		case <-ticker.C:
			p.monitor(runCtx)
		}
	}
}

// resolve loads the accounts in parallel and drops the ones that are gone.
func (p *Pool) resolve(ctx context.Context, addresses []string) ([]model.Account, error) {
	found := make([]*model.Account, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ResolveConcurrency)
	for i, address := range addresses {
		g.Go(func() error {
			acc, err := p.store.Get(gctx, address)
			switch {
			case errors.Is(err, store.ErrNotFound):
				p.logger.Warn("account not found in store, skipping", "account", address)
				return nil
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("failed to load account, skipping", "account", address, "error", err)
				return nil
			}
			found[i] = &acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(addresses))
	for _, acc := range found {
		if acc != nil {
			accounts = append(accounts, *acc)
		}
	}
	return accounts, nil
}

// start launches an account loop after its initial delay. Caller holds p.mu.
func (p *Pool) start(ctx context.Context, t *task) {
	run := &taskRun{done: make(chan struct{})}
	t.run = run

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(run.done)

		delay := randomDelay(p.cfg.InitialDelayMin, p.cfg.InitialDelayMax)
		if delay > 0 {
			p.logger.Debug("delaying account start", "account", t.address, "delay", delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			run.result = ResultCancelled
			return
		}
		run.result = p.runAccount(ctx, t.address)
	}()
}

// monitor restarts finished loops and logs process stats.
func (p *Pool) monitor(ctx context.Context) {
	p.mu.Lock()
	restarted := 0
	for _, t := range p.tasks {
		if t.retired || !finished(t.run) {
			continue
		}
		res := t.run.result
		if !res.Restartable() {
			t.retired = true
			metrics.AccountRetirements.WithLabelValues(res.String()).Inc()
			p.logger.Info("account retired", "account", t.address, "reason", res.String())
			continue
		}
		p.start(ctx, t)
		restarted++
	}
	p.mu.Unlock()

	if restarted > 0 {
		metrics.AccountRestarts.Add(float64(restarted))
		p.logger.Info("restarted dead account loops", "count", restarted)
	}

	p.logStats(ctx)
}

func (p *Pool) logStats(ctx context.Context) {
	stats := p.Stats()
	metrics.AccountTasks.Set(float64(stats.Running))

	attrs := []any{"tasks", stats.Running, "retired", stats.Retired}
	if p.live != nil {
		if n, err := p.live.Load(ctx); err == nil {
			metrics.GlobalLiveConnections.Set(float64(n))
			attrs = append(attrs, "live_connections", n)
		} else {
			p.logger.Debug("failed to read live counter", "error", err)
		}
	}
	if rss, err := metrics.ResidentMemory(); err == nil {
		attrs = append(attrs, "rss_mb", rss/(1024*1024))
	}
	p.logger.Info("farm stats", attrs...)
}

// drain cancels every loop and waits up to DrainTimeout for them to finish.
func (p *Pool) drain(cancel context.CancelFunc) {
	cancel()
	defer metrics.AccountTasks.Set(0)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if p.cfg.DrainTimeout <= 0 {
		<-done
		return
	}
	t := time.NewTimer(p.cfg.DrainTimeout)
	defer t.Stop()
	select {
	case <-done:
		p.logger.Info("all account loops stopped")
	case <-t.C:
		p.logger.Warn("timed out waiting for account loops to stop", "timeout", p.cfg.DrainTimeout)
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Tasks: len(p.tasks)}
	for _, t := range p.tasks {
		switch {
		case t.retired:
			s.Retired++
		case !finished(t.run):
			s.Running++
		}
	}
	return s
}

func finished(r *taskRun) bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
