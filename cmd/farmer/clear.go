package main

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/rickgao/pointfarm/internal/store"
)

func clearProxiesCommand(args []string) error {
	fs := flag.NewFlagSet("clear-proxies", flag.ExitOnError)
	cfg, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, cancel := signalContext(logger)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, "farmer-maintenance", logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	n, err := st.ClearProxies(ctx)
	if err != nil {
		return fmt.Errorf("clear proxies: %w", err)
	}
	logger.Info("cleared proxy assignments", "accounts", n)
	return nil
}
