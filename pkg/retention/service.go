// Package retention implements the background sweep that enforces each
// project's configured retention window against its durable event log,
// adapted from the teacher's cleanup ticker pattern.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/runtimescope/pkg/config"
	"github.com/codeready-toolchain/runtimescope/pkg/ingest"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
)

// DefaultSweepInterval is how often the sweep runs.
const DefaultSweepInterval = 1 * time.Hour

// Service periodically deletes durable-log rows older than each project's
// configured retention window.
type Service struct {
	registry *project.Registry
	logs     *ingest.LogManager
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweep over every project known to
// registry, deleting rows from logs older than each project's configured
// RetentionDays.
func NewService(registry *project.Registry, logs *ingest.LogManager, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Service{registry: registry, logs: logs, interval: interval}
}

// Start launches the background sweep loop. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)
	slog.Info("retention sweep started", "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("retention sweep stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		}
	}
}

func (s *Service) sweepAll(ctx context.Context) {
	names, err := s.registry.ListProjects()
	if err != nil {
		slog.Error("retention: failed to list projects", "error", err)
		return
	}

	for _, name := range names {
		s.sweepProject(ctx, name)
	}
}

func (s *Service) sweepProject(ctx context.Context, name string) {
	cfg, err := s.registry.EnsureProjectDir(name)
	if err != nil {
		slog.Error("retention: failed to load project config", "project", name, "error", err)
		return
	}

	log, err := s.logs.GetOrOpen(ctx, name)
	if err != nil {
		slog.Error("retention: failed to open durable log", "project", name, "error", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays(cfg)).UnixMilli()
	deleted, err := log.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention: delete-before failed", "project", name, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("retention: swept stale events", "project", name, "deleted", deleted)
	}

	deletedSnapshots, err := log.DeleteSessionMetricsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention: session-metrics delete-before failed", "project", name, "error", err)
		return
	}
	if deletedSnapshots > 0 {
		slog.Info("retention: swept stale session snapshots", "project", name, "deleted", deletedSnapshots)
	}
}

func retentionDays(cfg *config.ProjectConfig) int {
	return cfg.RetentionDays()
}
