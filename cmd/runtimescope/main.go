// Command runtimescope runs the collector: it accepts ingest connections
// from instrumented applications, stores events in memory and on disk, and
// serves historical queries and a live event stream over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/runtimescope/pkg/api"
	"github.com/codeready-toolchain/runtimescope/pkg/durablelog"
	"github.com/codeready-toolchain/runtimescope/pkg/ingest"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
	"github.com/codeready-toolchain/runtimescope/pkg/queue"
	"github.com/codeready-toolchain/runtimescope/pkg/retention"
	"github.com/codeready-toolchain/runtimescope/pkg/ringstore"
	"github.com/codeready-toolchain/runtimescope/pkg/session"
	"github.com/codeready-toolchain/runtimescope/pkg/version"
)

const (
	defaultIngestPort   = 9090
	defaultHTTPPort     = 9091
	defaultBufferSize   = 10000
	shutdownGracePeriod = 10 * time.Second
)

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

func main() {
	ingestPort := flag.Int("ingest-port", getEnvInt("RUNTIMESCOPE_PORT", defaultIngestPort), "TCP port for the ingest protocol")
	httpPort := flag.Int("http-port", getEnvInt("RUNTIMESCOPE_HTTP_PORT", defaultHTTPPort), "HTTP port for the query/stream API")
	bufferSize := flag.Int("buffer-size", getEnvInt("RUNTIMESCOPE_BUFFER_SIZE", defaultBufferSize), "in-memory ring buffer capacity")
	rootDir := flag.String("root-dir", os.Getenv("RUNTIMESCOPE_ROOT_DIR"), "collector root directory (defaults to ~/.runtimescope)")
	envFile := flag.String("env-file", ".env", "optional .env file to load before startup")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Debug("no .env file loaded", "path", *envFile, "error", err)
	}

	if err := run(*ingestPort, *httpPort, *bufferSize, *rootDir); err != nil {
		slog.Error("runtimescope exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ingestPort, httpPort, bufferSize int, rootDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rootDir == "" {
		var err error
		rootDir, err = project.DefaultRootDir()
		if err != nil {
			return fmt.Errorf("resolve root dir: %w", err)
		}
	}

	registry := project.NewRegistry(rootDir)
	if _, err := registry.EnsureGlobalDir(); err != nil {
		return fmt.Errorf("initialize root dir: %w", err)
	}
	slog.Info("runtimescope starting", "version", version.Full(), "root_dir", rootDir, "ingest_port", ingestPort, "http_port", httpPort, "buffer_size", bufferSize)

	store := ringstore.New(bufferSize)
	logs := ingest.NewLogManager(registry, durablelog.DefaultConfig())
	defer func() {
		if err := logs.CloseAll(); err != nil {
			slog.Error("error closing durable logs", "error", err)
		}
	}()

	pool := queue.New(0)
	pool.Start(ctx)
	defer pool.Stop()

	sessions := session.NewManager(snapshotStoreAdapter{logs: logs})

	ingestSrv := ingest.NewServer(ingest.DefaultConfig(ingestPort), registry, store, logs, sessions)
	if err := ingestSrv.Start(ctx); err != nil {
		return fmt.Errorf("start ingest server: %w", err)
	}
	defer ingestSrv.Stop()

	retentionSvc := retention.NewService(registry, logs, retention.DefaultSweepInterval)
	retentionSvc.Start(ctx)
	defer retentionSvc.Stop()

	httpSrv := api.NewServer(store, registry, ingestSrv, sessions, logs, pool)
	addr := fmt.Sprintf("127.0.0.1:%d", httpPort)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("query/stream API listening", "addr", addr)
		if err := httpSrv.Start(addr); err != nil {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http shutdown", "error", err)
	}

	return nil
}

// snapshotStoreAdapter satisfies session.SnapshotStore by routing calls
// through the per-project durable log, opening it on first use.
type snapshotStoreAdapter struct {
	logs *ingest.LogManager
}

func (a snapshotStoreAdapter) SaveSessionMetrics(ctx context.Context, sessionID, proj string, metrics json.RawMessage, createdAt int64) error {
	log, err := a.logs.GetOrOpen(ctx, proj)
	if err != nil {
		return err
	}
	return log.SaveSessionMetrics(ctx, sessionID, proj, metrics, createdAt)
}

func (a snapshotStoreAdapter) SessionHistory(ctx context.Context, proj string, limit int) ([]json.RawMessage, error) {
	log, err := a.logs.GetOrOpen(ctx, proj)
	if err != nil {
		return nil, err
	}
	return log.SessionHistory(ctx, proj, limit)
}
