package durablelog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(context.Background(), filepath.Join(dir, "events.db"), "demo", Config{BatchSize: 2, FlushInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testEvent(sessionID, id string, ts int64) eventmodel.Event {
	body, _ := json.Marshal(eventmodel.ConsoleBody{Level: "log", Message: id})
	return eventmodel.Event{EventID: id, SessionID: sessionID, Timestamp: ts, Kind: eventmodel.KindConsole, Data: body}
}

func TestAddFlushesOnBatchSize(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Add(testEvent("s1", "e1", 100), "demo")
	l.Add(testEvent("s1", "e2", 200), "demo")

	require.Eventually(t, func() bool {
		n, err := l.Count(ctx, Filter{Project: "demo"})
		return err == nil && n == 2
	}, time.Second, 10*time.Millisecond)
}

func TestAddFlushesOnTimer(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Add(testEvent("s1", "solo", 100), "demo")

	require.Eventually(t, func() bool {
		n, err := l.Count(ctx, Filter{Project: "demo"})
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrdersByTimestampAscending(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Add(testEvent("s1", "e3", 300), "demo")
	l.Add(testEvent("s1", "e1", 100), "demo")
	l.flush(ctx)
	l.Add(testEvent("s1", "e2", 200), "demo")
	l.flush(ctx)

	events, err := l.Get(ctx, Filter{Project: "demo"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{events[0].EventID, events[1].EventID, events[2].EventID})
}

func TestDuplicateEventIDSessionIsIgnored(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Add(testEvent("s1", "dup", 100), "demo")
	l.flush(ctx)
	l.Add(testEvent("s1", "dup", 100), "demo")
	l.flush(ctx)

	n, err := l.Count(ctx, Filter{Project: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionUpsertAndDisconnect(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	s := eventmodel.Session{SessionID: "s1", Project: "demo", AppName: "demo-app", ConnectedAt: 100, SDKVersion: "1.0.0"}
	require.NoError(t, l.UpsertSession(ctx, s))
	require.NoError(t, l.MarkDisconnected(ctx, "s1", 200))
}

func TestSaveAndListSessionMetrics(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	blob, _ := json.Marshal(map[string]int{"lcp": 1200})
	require.NoError(t, l.SaveSessionMetrics(ctx, "s1", "demo", blob, 100))
	require.NoError(t, l.SaveSessionMetrics(ctx, "s2", "demo", blob, 200))

	history, err := l.SessionHistory(ctx, "demo", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDeleteBefore(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Add(testEvent("s1", "old", 100), "demo")
	l.Add(testEvent("s1", "new", 900), "demo")
	l.flush(ctx)

	n, err := l.DeleteBefore(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := l.Get(ctx, Filter{Project: "demo"})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].EventID)
}
