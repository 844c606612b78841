package farm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rickgao/pointfarm/internal/connection"
	"github.com/rickgao/pointfarm/internal/metrics"
	"github.com/rickgao/pointfarm/internal/model"
	"github.com/rickgao/pointfarm/internal/proxy"
	"github.com/rickgao/pointfarm/internal/store"
)

// runAccount drives one account until it is deleted, retired, or ctx ends.
func (p *Pool) runAccount(ctx context.Context, address string) Result {
	logger := p.logger.With("account", address)

	for {
		acc, err := p.store.Get(ctx, address)
		if ctx.Err() != nil {
			return ResultCancelled
		}
		if errors.Is(err, store.ErrNotFound) {
			logger.Error("account was deleted from the store, stopping")
			return ResultDeleted
		}
		if err != nil {
			logger.Error("failed to load account", "error", err)
			return ResultFailed
		}

		if acc.Proxy == "" {
			assigned, res, ok := p.assignProxy(ctx, logger, address)
			if !ok {
				return res
			}
			acc.Proxy = assigned
		}

		session, err := p.newSession(acc, logger)
		if err != nil {
			logger.Error("cannot create session, stopping", "error", err)
			return ResultInvalidKey
		}

		runErr := session.Run(ctx)
		if ctx.Err() != nil {
			return ResultCancelled
		}
		logger.Error("websocket session ended", "error", runErr)

		if !p.cfg.DisableAutoProxyChange {
			p.proxies.Release(acc.Proxy)
			if _, res, ok := p.assignProxy(ctx, logger, address); !ok {
				return res
			}
			metrics.ProxyRotations.Inc()
			logger.Info("proxy changed, reconnecting")
		} else {
			if connection.IsProxyAuth(runErr) {
				logger.Error("proxy authentication failed, account removed from farming while auto proxy change is disabled",
					"proxy", proxy.Redact(acc.Proxy))
				return ResultInvalidProxy
			}
			logger.Info("reconnecting")
		}

		if err := sleepCtx(ctx, p.cfg.RotationDelay); err != nil {
			return ResultCancelled
		}
	}
}

// assignProxy acquires a proxy and persists it on the account.
func (p *Pool) assignProxy(ctx context.Context, logger *slog.Logger, address string) (string, Result, bool) {
	assigned, err := p.proxies.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ResultCancelled, false
		}
		logger.Error("failed to acquire proxy", "error", err)
		return "", ResultFailed, false
	}

	if err := p.store.Update(ctx, address, model.WithProxy(assigned)); err != nil {
		if ctx.Err() != nil {
			p.proxies.Release(assigned)
			return "", ResultCancelled, false
		}
		// The session can still use the proxy; the next iteration retries the write.
		logger.Warn("failed to persist proxy", "error", err)
	}
	return assigned, 0, true
}
