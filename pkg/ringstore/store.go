// Package ringstore implements the in-memory event store (C3): a single
// bounded ring buffer shared across all projects and sessions, with typed
// accessors and a publish/subscribe bus for live listeners.
package ringstore

import (
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// Filter narrows a read over the ring buffer. Zero values mean "no
// restriction" for that field.
type Filter struct {
	SinceSeconds  int64
	SessionID     string
	URLPattern    string
	Method        string
	Status        int
	Level         string
	Search        string
	StoreID       string
	ComponentName string
	MetricName    string
	Table         string
	MinDurationMs float64
}

// sessionState tracks the fields needed for SessionInfo summaries; it is
// updated from the synthetic "session" event and every subsequent event for
// that session.
type sessionState struct {
	appName     string
	connectedAt int64
	sdkVersion  string
	eventCount  int64
	isConnected bool
}

// Store is the bounded, eviction-on-overflow ring buffer of Events.
type Store struct {
	mu       sync.Mutex
	capacity int
	buf      []eventmodel.Event
	start    int // index of the oldest element
	size     int

	sessions map[string]*sessionState

	bus *Bus
}

// New creates a Store with the given capacity. Capacity 0 is valid: every
// added event is evicted immediately (spec §8 boundary behavior).
func New(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		capacity: capacity,
		buf:      make([]eventmodel.Event, capacity),
		sessions: make(map[string]*sessionState),
		bus:      newBus(),
	}
}

// Bus returns the store's publish/subscribe bus.
func (s *Store) Bus() *Bus { return s.bus }

// Add appends an event to the ring, evicting the oldest entry on overflow,
// then notifies subscribers on the bus with a non-blocking, drop-on-slow
// policy (spec §4.3, §9). The lock is released before the bus walk runs.
func (s *Store) Add(e eventmodel.Event) {
	s.mu.Lock()
	s.append(e)
	s.trackSession(e)
	s.mu.Unlock()

	s.bus.publish(e)
}

func (s *Store) append(e eventmodel.Event) {
	if s.capacity == 0 {
		return
	}
	idx := (s.start + s.size) % s.capacity
	s.buf[idx] = e
	if s.size < s.capacity {
		s.size++
	} else {
		s.start = (s.start + 1) % s.capacity
	}
}

func (s *Store) trackSession(e eventmodel.Event) {
	st, ok := s.sessions[e.SessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[e.SessionID] = st
	}
	st.eventCount++

	if e.Kind == eventmodel.KindSession {
		if body, err := e.DecodeSession(); err == nil {
			st.appName = body.AppName
			st.connectedAt = body.ConnectedAt
			st.sdkVersion = body.SDKVersion
			st.isConnected = true
		}
	}
}

// MarkConnected updates a session's connected flag. Used by the ingest
// server on handshake/disconnect so SessionInfo reflects liveness even
// before/after events for that session flow through the ring.
func (s *Store) MarkConnected(sessionID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	st.isConnected = connected
}

// snapshot returns a stable copy of the current buffer contents in
// chronological order. Callers iterate the copy, never the live ring.
func (s *Store) snapshot() []eventmodel.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]eventmodel.Event, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.start+i)%s.capacity]
	}
	return out
}

// SessionInfo returns a summary of every session seen in the buffer or with
// an active connection.
func (s *Store) SessionInfo() []eventmodel.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]eventmodel.SessionInfo, 0, len(s.sessions))
	for id, st := range s.sessions {
		out = append(out, eventmodel.SessionInfo{
			SessionID:   id,
			AppName:     st.appName,
			ConnectedAt: st.connectedAt,
			SDKVersion:  st.sdkVersion,
			EventCount:  st.eventCount,
			IsConnected: st.isConnected,
		})
	}
	return out
}

// Timeline returns every event within the relative window described by f,
// optionally restricted to a set of kinds.
func (s *Store) Timeline(f Filter, kinds []eventmodel.Kind) []eventmodel.Event {
	kindSet := make(map[eventmodel.Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if len(kindSet) > 0 && !kindSet[e.Kind] {
			return false
		}
		return true
	})
}

// Network returns network events matching f.
func (s *Store) Network(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindNetwork {
			return false
		}
		body, err := e.DecodeNetwork()
		if err != nil {
			return false
		}
		if f.URLPattern != "" && !strings.Contains(body.URL, f.URLPattern) {
			return false
		}
		if f.Method != "" && !strings.EqualFold(body.Method, f.Method) {
			return false
		}
		if f.Status != 0 && body.Status != f.Status {
			return false
		}
		return true
	})
}

// Console returns console events matching f.
func (s *Store) Console(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindConsole {
			return false
		}
		body, err := e.DecodeConsole()
		if err != nil {
			return false
		}
		if f.Level != "" && !strings.EqualFold(body.Level, f.Level) {
			return false
		}
		if f.Search != "" && !strings.Contains(body.Message, f.Search) {
			return false
		}
		return true
	})
}

// State returns state events matching f.
func (s *Store) State(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindState {
			return false
		}
		body, err := e.DecodeState()
		if err != nil {
			return false
		}
		if f.StoreID != "" && body.StoreID != f.StoreID {
			return false
		}
		return true
	})
}

// Renders returns render events matching f.
func (s *Store) Renders(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindRender {
			return false
		}
		if f.ComponentName == "" {
			return true
		}
		body, err := e.DecodeRender()
		if err != nil {
			return false
		}
		for _, p := range body.Profiles {
			if p.ComponentName == f.ComponentName {
				return true
			}
		}
		return false
	})
}

// Performance returns performance events matching f.
func (s *Store) Performance(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindPerformance {
			return false
		}
		body, err := e.DecodePerformance()
		if err != nil {
			return false
		}
		if f.MetricName != "" && !strings.EqualFold(body.MetricName, f.MetricName) {
			return false
		}
		return true
	})
}

// Database returns database events matching f.
func (s *Store) Database(f Filter) []eventmodel.Event {
	return s.filterEvents(f, func(e eventmodel.Event) bool {
		if e.Kind != eventmodel.KindDatabase {
			return false
		}
		body, err := e.DecodeDatabase()
		if err != nil {
			return false
		}
		if f.Table != "" {
			found := false
			for _, tbl := range body.TablesAccessed {
				if tbl == f.Table {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if f.MinDurationMs > 0 && body.Duration < f.MinDurationMs {
			return false
		}
		if f.Search != "" && !strings.Contains(body.Query, f.Search) {
			return false
		}
		return true
	})
}

func (s *Store) filterEvents(f Filter, match func(eventmodel.Event) bool) []eventmodel.Event {
	events := s.snapshot()
	var cutoff int64
	if f.SinceSeconds > 0 {
		cutoff = time.Now().Add(-time.Duration(f.SinceSeconds) * time.Second).UnixMilli()
	}

	out := make([]eventmodel.Event, 0, len(events))
	for _, e := range events {
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if cutoff > 0 && e.Timestamp < cutoff {
			continue
		}
		if !match(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of events currently held in the ring.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns the ring's fixed capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Clear truncates the ring and returns the number of events that were
// cleared.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.size
	s.buf = make([]eventmodel.Event, s.capacity)
	s.start = 0
	s.size = 0
	s.sessions = make(map[string]*sessionState)
	return cleared
}
