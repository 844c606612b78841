package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	redis "github.com/redis/go-redis/v9"

	"github.com/rickgao/pointfarm/internal/api"
	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/connection"
	"github.com/rickgao/pointfarm/internal/counter"
	"github.com/rickgao/pointfarm/internal/events"
	"github.com/rickgao/pointfarm/internal/farm"
	"github.com/rickgao/pointfarm/internal/metrics"
	"github.com/rickgao/pointfarm/internal/proxy"
	"github.com/rickgao/pointfarm/internal/store"
	"github.com/rickgao/pointfarm/internal/supervisor"
)

func workerCommand(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	index := fs.Int("index", 0, "worker index assigned by the supervisor")
	cfg, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	logger := slog.Default().With("process", *index)

	in, err := supervisor.ReadInput(os.Stdin)
	if err != nil {
		return err
	}
	if in.Partition.Index != *index {
		return fmt.Errorf("worker index %d does not match partition %d", *index, in.Partition.Index)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, fmt.Sprintf("farmer-worker-%d", *index), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	live, err := openCounter(cfg.Counter, in.CounterPath)
	if err != nil {
		return err
	}
	defer live.Close()

	pub := events.New(cfg.Events, logger)
	defer pub.Close()

	proxies, err := proxy.NewPool(in.Partition.Proxies, proxy.PoolConfig{Unique: cfg.Farm.UniqueProxies}, logger)
	if err != nil {
		return err
	}

	// The leader runs the token refresher; its exit ends the whole farm.
	var leader farm.Leader
	if *index == 0 && cfg.AuthRefresh.URL != "" {
		client := api.NewClient(cfg.AuthRefresh.URL, cfg.AuthRefresh.RefreshToken,
			api.WithLogger(logger),
			api.WithTimeout(cfg.AuthRefresh.Timeout),
		)
		leader = api.NewRefresher(client, cfg.AuthRefresh.Interval, cfg.AuthRefresh.MaxFailures, logger)
	}

	if cfg.Metrics.Port > 0 {
		srv := metrics.NewServer(cfg.Metrics.Port+1+*index, cfg.Metrics.Path, nil, logger)
		srv.Start()
		defer shutdownServer(srv, logger)
	}

	pool := farm.NewPool(poolConfig(cfg, *index), farm.Deps{
		Store:   st,
		Proxies: proxies,
		NewSession: farm.NewSessionFactory(sessionConfig(cfg.Connection), connection.Deps{
			Store:   st,
			Events:  pub,
			Counter: live,
		}),
		Leader:  leader,
		Counter: live,
	}, logger)

	logger.Info("worker starting",
		"accounts", len(in.Partition.Accounts),
		"proxies", len(in.Partition.Proxies),
		"leader", leader != nil)

	if err := pool.Run(ctx, in.Partition.Accounts); err != nil {
		return fmt.Errorf("worker %d: %w", *index, err)
	}
	logger.Info("worker stopped")
	return nil
}

// openCounter attaches to the counter prepared by the supervisor.
func openCounter(cfg config.CounterConfig, path string) (counter.Counter, error) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return counter.NewRedis(client, cfg.Redis.Key), nil
	}

	if path == "" {
		return nil, fmt.Errorf("no live counter path from supervisor")
	}
	ctr, err := counter.OpenMapped(path)
	if err != nil {
		return nil, err
	}
	return ctr, nil
}

func sessionConfig(c config.ConnectionConfig) connection.SessionConfig {
	return connection.SessionConfig{
		Client: connection.ClientConfig{
			URL:                c.WSURL,
			Origin:             c.Origin,
			UserAgent:          c.UserAgent,
			AcceptLanguage:     c.AcceptLanguage,
			InsecureSkipVerify: c.SkipTLSVerify(),
			HandshakeTimeout:   c.HandshakeTimeout,
			WriteTimeout:       c.WriteTimeout,
		},
		AuthTimeout:       c.AuthTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		ReconnectDelay:    c.ReconnectDelay,
		RestartDelayMin:   c.RestartDelayMin,
		RestartDelayMax:   c.RestartDelayMax,
		AuthCacheTTL:      c.AuthCacheTTL,
		MaxErrors:         c.MaxErrors,
		ErrorWindow:       c.ErrorWindow,
		CountCommonErrors: c.CountsCommonErrors(),
		AuthMessage:       c.AuthMessage,
	}
}

func poolConfig(cfg *config.FarmConfig, index int) farm.Config {
	return farm.Config{
		Process:                index,
		InitialDelayMin:        cfg.Farm.InitialDelayMin,
		InitialDelayMax:        cfg.Farm.InitialDelayMax,
		MonitorInterval:        cfg.Farm.MonitorInterval,
		RotationDelay:          cfg.Farm.RotationDelay,
		DrainTimeout:           cfg.Farm.DrainTimeout,
		DisableAutoProxyChange: cfg.Farm.DisableAutoProxyChange,
		ResolveConcurrency:     farm.DefaultConfig().ResolveConcurrency,
	}
}
