// Command farmer keeps a fleet of wallet accounts connected to the scoring
// service.
//
// Usage:
//
//	farmer run -config farm.yaml            start the supervisor and its workers
//	farmer worker -config farm.yaml -index N (started by run; reads its partition on stdin)
//	farmer clear-proxies -config farm.yaml  remove every stored proxy assignment
//	farmer version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/version"
)

const defaultConfigPath = "config/farm.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(args)
	case "worker":
		err = workerCommand(args)
	case "clear-proxies":
		err = clearProxiesCommand(args)
	case "version":
		fmt.Println(version.String())
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("farmer exited with error", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: farmer <command> [flags]

commands:
  run            start the supervisor and worker processes
  worker         run one worker (started by run)
  clear-proxies  remove every stored proxy assignment
  version        print the build version`)
}

// setup loads the config and installs the default logger.
func setup(fs *flag.FlagSet, args []string) (*config.FarmConfig, string, error) {
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, *configPath, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
