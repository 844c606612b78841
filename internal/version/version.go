// Package version holds build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/rickgao/pointfarm/internal/version.Version=$(git describe --tags) \
//	                   -X github.com/rickgao/pointfarm/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/pointfarm/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/farmer
package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String is the `farmer version` output.
func String() string {
	return fmt.Sprintf("farmer %s (%s) built %s with %s", Version, Commit, BuildTime, runtime.Version())
}

// LogValue groups the build metadata for a log line.
func LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("built", BuildTime),
	)
}
