package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/rickgao/pointfarm/internal/auth"
	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/counter"
	"github.com/rickgao/pointfarm/internal/metrics"
	"github.com/rickgao/pointfarm/internal/model"
	"github.com/rickgao/pointfarm/internal/proxy"
	"github.com/rickgao/pointfarm/internal/store"
	"github.com/rickgao/pointfarm/internal/supervisor"
	"github.com/rickgao/pointfarm/internal/version"
)

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg, configPath, err := setup(fs, args)
	if err != nil {
		return err
	}
	logger := slog.Default()

	logger.Info("starting farmer",
		"build", version.LogValue(),
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, cancel := signalContext(logger)
	defer cancel()

	accounts, err := loadAccounts(cfg.Farm.AccountsFile, logger)
	if err != nil {
		return err
	}
	proxies, err := loadProxies(cfg.Farm.ProxiesFile)
	if err != nil {
		return err
	}
	logger.Info("loaded farm data", "accounts", len(accounts), "proxies", len(proxies))

	if err := seedStore(ctx, cfg.Store, accounts, logger); err != nil {
		return err
	}

	counterPath, closeCounter, err := prepareCounter(ctx, cfg.Counter, logger)
	if err != nil {
		return err
	}
	defer closeCounter()

	sup := supervisor.New(supervisor.Config{
		Processes:          cfg.Farm.Processes,
		ShuffleAccounts:    cfg.Farm.ShuffleAccounts,
		ShuffleSeed:        cfg.Farm.ShuffleSeed,
		LeaderPollInterval: cfg.Farm.LeaderPollInterval,
		StopTimeout:        cfg.Farm.DrainTimeout + 5*time.Second,
		CounterPath:        counterPath,
	}, &supervisor.ExecLauncher{ConfigPath: configPath}, logger)

	if cfg.Metrics.Port > 0 {
		srv := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, func(context.Context) error {
			if sup.Running() == 0 {
				return errors.New("no workers running")
			}
			return nil
		}, logger)
		srv.Start()
		defer shutdownServer(srv, logger)
	}

	addresses := make([]string, len(accounts))
	for i, acc := range accounts {
		addresses[i] = acc.WalletAddress
	}

	if err := sup.Run(ctx, addresses, proxies); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info("farmer stopped")
	return nil
}

// loadAccounts reads private keys and derives their wallet addresses.
// Invalid keys are logged and skipped; duplicates are dropped.
func loadAccounts(path string, logger *slog.Logger) ([]model.Account, error) {
	keys, err := config.ReadLines(path, false)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	seen := make(map[string]bool, len(keys))
	accounts := make([]model.Account, 0, len(keys))
	for i, key := range keys {
		address, err := auth.AddressFromKey(key)
		if err != nil {
			logger.Error("skipping invalid private key", "entry", i+1, "error", err)
			continue
		}
		if seen[address] {
			logger.Warn("skipping duplicate account", "account", address)
			continue
		}
		seen[address] = true
		accounts = append(accounts, model.Account{WalletAddress: address, PrivateKey: key})
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("load accounts: no valid private keys in %s", path)
	}
	return accounts, nil
}

func loadProxies(path string) ([]string, error) {
	lines, err := config.ReadLines(path, true)
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	proxies, err := proxy.ParseAll(lines)
	if err != nil {
		return nil, fmt.Errorf("load proxies from %s: %w", path, err)
	}
	return proxies, nil
}

// seedStore makes sure every account exists in the store.
func seedStore(ctx context.Context, cfg config.StoreConfig, accounts []model.Account, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg, "farmer-supervisor", logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Upsert(ctx, accounts); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}
	logger.Info("accounts stored", "driver", cfg.Driver, "count", len(accounts))
	return nil
}

// prepareCounter creates and zeroes the shared live-connection counter. It
// returns the mmap path workers should open ("" for redis).
func prepareCounter(ctx context.Context, cfg config.CounterConfig, logger *slog.Logger) (string, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctr := counter.NewRedis(client, cfg.Redis.Key)
		if err := ctr.Reset(ctx); err != nil {
			client.Close()
			return "", nil, fmt.Errorf("reset live counter: %w", err)
		}
		logger.Info("live counter ready", "backend", "redis", "key", cfg.Redis.Key)
		return "", func() { client.Close() }, nil

	default:
		path := cfg.Path
		temporary := path == ""
		if temporary {
			path = filepath.Join(os.TempDir(), fmt.Sprintf("pointfarm-%d.counter", os.Getpid()))
		}
		ctr, err := counter.CreateMapped(path)
		if err != nil {
			return "", nil, fmt.Errorf("create live counter: %w", err)
		}
		logger.Info("live counter ready", "backend", "mmap", "path", path)
		return path, func() {
			ctr.Close()
			if temporary {
				os.Remove(path)
			}
		}, nil
	}
}

func shutdownServer(srv *metrics.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Debug("metrics server shutdown", "error", err)
	}
}
