package retention

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/durablelog"
	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
	"github.com/codeready-toolchain/runtimescope/pkg/ingest"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
)

func newTestRegistry(t *testing.T) *project.Registry {
	t.Helper()
	registry := project.NewRegistry(t.TempDir())
	_, err := registry.EnsureGlobalDir()
	require.NoError(t, err)
	return registry
}

func TestSweepProjectDeletesOldEvents(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.EnsureProjectDir("demo")
	require.NoError(t, err)

	logs := ingest.NewLogManager(registry, durablelog.DefaultConfig())
	t.Cleanup(func() { _ = logs.CloseAll() })

	ctx := context.Background()
	log, err := logs.GetOrOpen(ctx, "demo")
	require.NoError(t, err)

	oldTs := time.Now().AddDate(0, 0, -60).UnixMilli()
	body, _ := json.Marshal(eventmodel.ConsoleBody{Level: "log", Message: "stale"})
	log.Add(eventmodel.Event{EventID: "old-1", SessionID: "s1", Timestamp: oldTs, Kind: eventmodel.KindConsole, Data: body}, "demo")

	require.Eventually(t, func() bool {
		n, err := log.Count(ctx, durablelog.Filter{Project: "demo"})
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	svc := NewService(registry, logs, time.Hour)
	svc.sweepProject(ctx, "demo")

	n, err := log.Count(ctx, durablelog.Filter{Project: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepProjectDeletesOldSessionMetrics(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.EnsureProjectDir("demo")
	require.NoError(t, err)

	logs := ingest.NewLogManager(registry, durablelog.DefaultConfig())
	t.Cleanup(func() { _ = logs.CloseAll() })

	ctx := context.Background()
	log, err := logs.GetOrOpen(ctx, "demo")
	require.NoError(t, err)

	oldTs := time.Now().AddDate(0, 0, -60).UnixMilli()
	require.NoError(t, log.SaveSessionMetrics(ctx, "s1", "demo", json.RawMessage(`{"totalEvents":1}`), oldTs))

	history, err := log.SessionHistory(ctx, "demo", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	svc := NewService(registry, logs, time.Hour)
	svc.sweepProject(ctx, "demo")

	history, err = log.SessionHistory(ctx, "demo", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	registry := newTestRegistry(t)
	logs := ingest.NewLogManager(registry, durablelog.DefaultConfig())
	svc := NewService(registry, logs, time.Hour)
	svc.Stop()
}
