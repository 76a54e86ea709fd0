package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/runtimescope/pkg/durablelog"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
)

// LogManager lazily opens and caches one durablelog.Log per project, keyed
// by the sanitized project name.
type LogManager struct {
	registry *project.Registry
	cfg      durablelog.Config

	mu   sync.Mutex
	logs map[string]*durablelog.Log
}

// NewLogManager creates a LogManager rooted at registry.
func NewLogManager(registry *project.Registry, cfg durablelog.Config) *LogManager {
	return &LogManager{registry: registry, cfg: cfg, logs: make(map[string]*durablelog.Log)}
}

// GetOrOpen returns the durable log for project, opening and migrating it on
// first use.
func (m *LogManager) GetOrOpen(ctx context.Context, projectName string) (*durablelog.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if log, ok := m.logs[projectName]; ok {
		return log, nil
	}

	if _, err := m.registry.EnsureProjectDir(projectName); err != nil {
		return nil, fmt.Errorf("ensure project dir: %w", err)
	}

	log, err := durablelog.Open(ctx, m.registry.EventsDBPath(projectName), projectName, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("open durable log for project %q: %w", projectName, err)
	}
	m.logs[projectName] = log
	return log, nil
}

// FlushErrorCounts reports the cumulative flush-error count per open
// project log, for health reporting.
func (m *LogManager) FlushErrorCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.logs))
	for name, log := range m.logs {
		out[name] = log.FlushErrorCount()
	}
	return out
}

// CloseAll closes every opened durable log and returns the first close
// error; an error does not stop the remaining closes.
func (m *LogManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, log := range m.logs {
		if err := log.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close log for project %q: %w", name, err)
		}
	}
	return firstErr
}
