package proxy

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrNoProxies is returned when a pool is built without any proxies.
var ErrNoProxies = errors.New("no proxies available")

// DefaultWaitLogInterval is how often a blocked Acquire logs that it is still waiting.
const DefaultWaitLogInterval = 30 * time.Second

// PoolConfig holds proxy pool settings.
type PoolConfig struct {
	// Unique makes assignments exclusive: an acquired proxy is unavailable
	// until released. Otherwise Acquire picks randomly among all proxies.
	Unique          bool
	WaitLogInterval time.Duration
}

// Pool hands out proxies to account loops. Safe for concurrent use.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu      sync.Mutex
	proxies []string
	inUse   map[string]bool
	changed chan struct{} // closed and replaced whenever a proxy is released
}

// NewPool creates a pool over the given proxies.
func NewPool(proxies []string, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if len(proxies) == 0 {
		return nil, ErrNoProxies
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WaitLogInterval == 0 {
		cfg.WaitLogInterval = DefaultWaitLogInterval
	}

	return &Pool{
		cfg:     cfg,
		logger:  logger,
		proxies: append([]string(nil), proxies...),
		inUse:   make(map[string]bool),
		changed: make(chan struct{}),
	}, nil
}

// Acquire returns a proxy. In unique mode it blocks until one is free,
// logging periodically, or until ctx is done.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	ticker := time.NewTicker(p.cfg.WaitLogInterval)
	defer ticker.Stop()

	for {
		proxy, wait, ok := p.tryAcquire()
		if ok {
			return proxy, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		case <-ticker.C:
			p.logger.Info("waiting for a free proxy", "total", len(p.proxies))
		}
	}
}

func (p *Pool) tryAcquire() (string, <-chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Unique {
		return p.proxies[rand.IntN(len(p.proxies))], nil, true
	}

	free := make([]string, 0, len(p.proxies)-len(p.inUse))
	for _, proxy := range p.proxies {
		if !p.inUse[proxy] {
			free = append(free, proxy)
		}
	}
	if len(free) == 0 {
		return "", p.changed, false
	}

	proxy := free[rand.IntN(len(free))]
	p.inUse[proxy] = true
	return proxy, nil, true
}

// Claim marks a proxy as in use without going through Acquire. Used for proxies
// already persisted on an account at startup. Unknown proxies are ignored.
func (p *Pool) Claim(proxy string) {
	if !p.cfg.Unique {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, known := range p.proxies {
		if known == proxy {
			p.inUse[proxy] = true
			return
		}
	}
}

// Release returns a proxy to the pool. Releasing an unheld proxy is a no-op.
func (p *Pool) Release(proxy string) {
	if !p.cfg.Unique || proxy == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUse[proxy] {
		return
	}
	delete(p.inUse, proxy)
	close(p.changed)
	p.changed = make(chan struct{})
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Total int
	InUse int
}

// Stats returns current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Total: len(p.proxies), InUse: len(p.inUse)}
}
