package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// SnapshotStore is the subset of durablelog.Log the manager needs to persist
// and recall snapshots. Accepting an interface keeps this package free of a
// direct dependency on the storage driver.
type SnapshotStore interface {
	SaveSessionMetrics(ctx context.Context, sessionID, project string, metrics json.RawMessage, createdAt int64) error
	SessionHistory(ctx context.Context, project string, limit int) ([]json.RawMessage, error)
}

// aggregate is the mutable running state backing one session's Snapshot.
type aggregate struct {
	project string

	endpoints  map[string]*endpointAgg
	components map[string]*componentAgg
	stores     map[string]*StoreMetric
	webVitals  map[string]*WebVitalMetric
	queries    map[string]*queryAgg

	totalEvents int64
	errorCount  int64
}

type endpointAgg struct {
	latencySum float64
	errorCount int64
	callCount  int64
}

type componentAgg struct {
	durationSum float64
	renderCount int64
}

type queryAgg struct {
	durationSum float64
	callCount   int64
}

func newAggregate(project string) *aggregate {
	return &aggregate{
		project:    project,
		endpoints:  make(map[string]*endpointAgg),
		components: make(map[string]*componentAgg),
		stores:     make(map[string]*StoreMetric),
		webVitals:  make(map[string]*WebVitalMetric),
		queries:    make(map[string]*queryAgg),
	}
}

type cachedSnapshot struct {
	snapshot Snapshot
	at       time.Time
}

// Manager maintains a running aggregate per active or recently-finished
// session and produces immutable snapshots and diffs on demand (C6).
type Manager struct {
	store SnapshotStore

	mu           sync.Mutex
	aggregates   map[string]*aggregate
	lastSnapshot map[string]cachedSnapshot
}

// NewManager creates a session manager backed by store for persistence.
func NewManager(store SnapshotStore) *Manager {
	return &Manager{
		store:        store,
		aggregates:   make(map[string]*aggregate),
		lastSnapshot: make(map[string]cachedSnapshot),
	}
}

func (m *Manager) aggregateFor(sessionID, project string) *aggregate {
	a, ok := m.aggregates[sessionID]
	if !ok {
		a = newAggregate(project)
		m.aggregates[sessionID] = a
	}
	return a
}

// Observe folds one event into its session's running aggregate.
func (m *Manager) Observe(project string, e eventmodel.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.aggregateFor(e.SessionID, project)
	a.totalEvents++

	switch e.Kind {
	case eventmodel.KindNetwork:
		body, err := e.DecodeNetwork()
		if err != nil {
			return
		}
		key := EndpointKey(body.Method, body.URL)
		ep, ok := a.endpoints[key]
		if !ok {
			ep = &endpointAgg{}
			a.endpoints[key] = ep
		}
		ep.callCount++
		ep.latencySum += body.Duration
		if body.Status >= 500 {
			ep.errorCount++
			a.errorCount++
		}

	case eventmodel.KindConsole:
		body, err := e.DecodeConsole()
		if err != nil {
			return
		}
		if body.Level == "error" {
			a.errorCount++
		}

	case eventmodel.KindRender:
		body, err := e.DecodeRender()
		if err != nil {
			return
		}
		for _, p := range body.Profiles {
			c, ok := a.components[p.ComponentName]
			if !ok {
				c = &componentAgg{}
				a.components[p.ComponentName] = c
			}
			c.renderCount++
			c.durationSum += p.Duration
		}

	case eventmodel.KindState:
		body, err := e.DecodeState()
		if err != nil {
			return
		}
		s, ok := a.stores[body.StoreID]
		if !ok {
			s = &StoreMetric{}
			a.stores[body.StoreID] = s
		}
		s.UpdateCount++

	case eventmodel.KindPerformance:
		body, err := e.DecodePerformance()
		if err != nil {
			return
		}
		a.webVitals[body.MetricName] = &WebVitalMetric{Value: body.Value, Rating: body.Rating}

	case eventmodel.KindDatabase:
		body, err := e.DecodeDatabase()
		if err != nil {
			return
		}
		q, ok := a.queries[body.NormalizedQuery]
		if !ok {
			q = &queryAgg{}
			a.queries[body.NormalizedQuery] = q
		}
		q.callCount++
		q.durationSum += body.Duration
	}
}

// CreateSnapshot freezes the current aggregate for sessionID, persists it,
// and returns it. Calling it twice within one second for the same session
// returns the cached value without re-persisting (spec §4.6 idempotence).
func (m *Manager) CreateSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	m.mu.Lock()
	if cached, ok := m.lastSnapshot[sessionID]; ok && time.Since(cached.at) < time.Second {
		snap := cached.snapshot
		m.mu.Unlock()
		return snap, nil
	}

	a, ok := m.aggregates[sessionID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("no aggregate for session %q", sessionID)
	}

	snap := Snapshot{
		SessionID:   sessionID,
		Project:     a.project,
		CreatedAt:   time.Now().UnixMilli(),
		Endpoints:   make(map[string]EndpointMetric, len(a.endpoints)),
		Components:  make(map[string]ComponentMetric, len(a.components)),
		Stores:      make(map[string]StoreMetric, len(a.stores)),
		WebVitals:   make(map[string]WebVitalMetric, len(a.webVitals)),
		Queries:     make(map[string]QueryMetric, len(a.queries)),
		TotalEvents: a.totalEvents,
		ErrorCount:  a.errorCount,
	}
	for k, v := range a.endpoints {
		errorRate := 0.0
		avgLatency := 0.0
		if v.callCount > 0 {
			errorRate = float64(v.errorCount) / float64(v.callCount)
			avgLatency = v.latencySum / float64(v.callCount)
		}
		snap.Endpoints[k] = EndpointMetric{AvgLatency: avgLatency, ErrorRate: errorRate, CallCount: v.callCount}
	}
	for k, v := range a.components {
		avg := 0.0
		if v.renderCount > 0 {
			avg = v.durationSum / float64(v.renderCount)
		}
		snap.Components[k] = ComponentMetric{RenderCount: v.renderCount, AvgDuration: avg}
	}
	for k, v := range a.stores {
		snap.Stores[k] = *v
	}
	for k, v := range a.webVitals {
		snap.WebVitals[k] = *v
	}
	for k, v := range a.queries {
		avg := 0.0
		if v.callCount > 0 {
			avg = v.durationSum / float64(v.callCount)
		}
		snap.Queries[k] = QueryMetric{AvgDuration: avg, CallCount: v.callCount}
	}

	m.lastSnapshot[sessionID] = cachedSnapshot{snapshot: snap, at: time.Now()}
	m.mu.Unlock()

	blob, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.store.SaveSessionMetrics(ctx, sessionID, snap.Project, blob, snap.CreatedAt); err != nil {
		return Snapshot{}, fmt.Errorf("save session metrics: %w", err)
	}

	return snap, nil
}

// GetSessionHistory returns the most recent snapshots for a project, newest
// first.
func (m *Manager) GetSessionHistory(ctx context.Context, project string, limit int) ([]Snapshot, error) {
	blobs, err := m.store.SessionHistory(ctx, project, limit)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	out := make([]Snapshot, 0, len(blobs))
	for _, blob := range blobs {
		var snap Snapshot
		if err := json.Unmarshal(blob, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// CompareSessions diffs two previously created snapshots.
func (m *Manager) CompareSessions(a, b Snapshot) DiffResult {
	return Compare(a, b)
}

// EndSession discards the running aggregate for sessionID. Callers should
// create a final snapshot first if one is wanted.
func (m *Manager) EndSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aggregates, sessionID)
}
