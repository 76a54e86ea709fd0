package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

type fakeStore struct {
	saved   map[string]json.RawMessage
	history []json.RawMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]json.RawMessage)}
}

func (f *fakeStore) SaveSessionMetrics(ctx context.Context, sessionID, project string, metrics json.RawMessage, createdAt int64) error {
	f.saved[sessionID] = metrics
	f.history = append(f.history, metrics)
	return nil
}

func (f *fakeStore) SessionHistory(ctx context.Context, project string, limit int) ([]json.RawMessage, error) {
	return f.history, nil
}

func networkEvent(sessionID, method, url string, status int, duration float64) eventmodel.Event {
	body, _ := json.Marshal(eventmodel.NetworkBody{Method: method, URL: url, Status: status, Duration: duration})
	return eventmodel.Event{SessionID: sessionID, Kind: eventmodel.KindNetwork, Data: body, Timestamp: time.Now().UnixMilli()}
}

func TestObserveAndCreateSnapshot(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)

	m.Observe("demo", networkEvent("s1", "GET", "/api/users/42", 200, 100))
	m.Observe("demo", networkEvent("s1", "GET", "/api/users/43", 200, 200))

	snap, err := m.CreateSnapshot(context.Background(), "s1")
	require.NoError(t, err)

	ep := snap.Endpoints["GET /api/users/:id"]
	assert.Equal(t, int64(2), ep.CallCount)
	assert.Equal(t, 150.0, ep.AvgLatency)
	assert.Contains(t, store.saved, "s1")
}

func TestCreateSnapshotIsIdempotentWithinOneSecond(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	m.Observe("demo", networkEvent("s1", "GET", "/x", 200, 100))

	first, err := m.CreateSnapshot(context.Background(), "s1")
	require.NoError(t, err)

	m.Observe("demo", networkEvent("s1", "GET", "/x", 200, 999))
	second, err := m.CreateSnapshot(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.history, 1)
}

func TestCompareSessionsEndpointRegression(t *testing.T) {
	a := Snapshot{Endpoints: map[string]EndpointMetric{"GET /api/users": {AvgLatency: 100, ErrorRate: 0, CallCount: 10}}}
	b := Snapshot{Endpoints: map[string]EndpointMetric{"GET /api/users": {AvgLatency: 250, ErrorRate: 0, CallCount: 10}}}

	diff := Compare(a, b)
	require.Len(t, diff.EndpointDeltas, 3)

	var latencyDelta *MetricDelta
	for i := range diff.EndpointDeltas {
		if diff.EndpointDeltas[i].Key == "GET /api/users avgLatency" {
			latencyDelta = &diff.EndpointDeltas[i]
		}
	}
	require.NotNil(t, latencyDelta)
	assert.Equal(t, 100.0, latencyDelta.Before)
	assert.Equal(t, 250.0, latencyDelta.After)
	assert.Equal(t, 150.0, latencyDelta.Delta)
	assert.Equal(t, 150.0, latencyDelta.PercentChange)
	assert.Equal(t, ClassRegression, latencyDelta.Classification)
}

func TestURLNormalization(t *testing.T) {
	url := "https://api.example.com/users/8e1f0c6a-0b1b-4c0f-9e3f-123456789abc/orders/42?x=1"
	assert.Equal(t, "https://api.example.com/users/:id/orders/:id", NormalizeURL(url))
	assert.Equal(t, "GET https://api.example.com/users/:id/orders/:id", EndpointKey("get", url))
}

func TestEndSessionDropsAggregate(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)
	m.Observe("demo", networkEvent("s1", "GET", "/x", 200, 1))
	m.EndSession("s1")

	_, err := m.CreateSnapshot(context.Background(), "s1")
	assert.Error(t, err)
}
