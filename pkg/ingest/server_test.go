package ingest

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/durablelog"
	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
	"github.com/codeready-toolchain/runtimescope/pkg/ringstore"
	"github.com/codeready-toolchain/runtimescope/pkg/session"
)

type fakeSnapshotStore struct{}

func (fakeSnapshotStore) SaveSessionMetrics(ctx context.Context, sessionID, project string, metrics json.RawMessage, createdAt int64) error {
	return nil
}
func (fakeSnapshotStore) SessionHistory(ctx context.Context, project string, limit int) ([]json.RawMessage, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *ringstore.Store) {
	t.Helper()
	dir := t.TempDir()
	registry := project.NewRegistry(filepath.Join(dir, "root"))
	_, err := registry.EnsureGlobalDir()
	require.NoError(t, err)

	logs := NewLogManager(registry, durablelog.DefaultConfig())
	store := ringstore.New(100)
	sessions := session.NewManager(fakeSnapshotStore{})

	cfg := DefaultConfig(0)
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.IdleTimeout = 2 * time.Second
	cfg.CommandTimeout = time.Second

	srv := NewServer(cfg, registry, store, logs, sessions)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv, store
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendHandshake(t *testing.T, conn net.Conn, sessionID string) {
	t.Helper()
	payload, _ := json.Marshal(eventmodel.HandshakePayload{AppName: "demo-app", SDKVersion: "1.0.0", SessionID: sessionID})
	frame := eventmodel.Frame{Type: eventmodel.FrameHandshake, Payload: payload, Timestamp: time.Now().UnixMilli(), SessionID: sessionID}
	require.NoError(t, WriteFrame(conn, frame))
}

func TestHandshakeThenEventFlowsIntoStore(t *testing.T) {
	srv, store := newTestServer(t)
	conn := dial(t, srv)

	sendHandshake(t, conn, "s1")

	eventBody, _ := json.Marshal(eventmodel.ConsoleBody{Level: "log", Message: "hello"})
	events := []eventmodel.Event{{EventID: "e1", Kind: eventmodel.KindConsole, Data: eventBody, Timestamp: time.Now().UnixMilli()}}
	evPayload, _ := json.Marshal(eventmodel.EventPayload{Events: events})
	require.NoError(t, WriteFrame(conn, eventmodel.Frame{Type: eventmodel.FrameEvent, Payload: evPayload, SessionID: "s1", Timestamp: time.Now().UnixMilli()}))

	require.Eventually(t, func() bool {
		return len(store.Console(ringstore.Filter{SessionID: "s1"})) == 1
	}, time.Second, 10*time.Millisecond)

	infos := store.SessionInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, "demo-app", infos[0].AppName)
	assert.True(t, infos[0].IsConnected)
}

func TestSecondHandshakeDisplacesFirstConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	first := dial(t, srv)
	sendHandshake(t, first, "dup-session")

	require.Eventually(t, func() bool {
		_, ok := srv.connectionFor("dup-session")
		return ok
	}, time.Second, 10*time.Millisecond)

	second := dial(t, srv)
	sendHandshake(t, second, "dup-session")

	require.Eventually(t, func() bool {
		_, ok := srv.connectionFor("dup-session")
		return ok
	}, time.Second, 10*time.Millisecond)

	buf := make([]byte, 1)
	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	_, err := first.Read(buf)
	assert.Error(t, err)
}
