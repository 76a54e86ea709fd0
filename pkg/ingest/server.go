// Package ingest implements the ingest server (C4): the loopback TCP
// listener that accepts long-lived, length-prefixed JSON connections from
// instrumented applications, validates handshakes, fans events into C3 and
// C2, and dispatches commands back to connected clients.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
	"github.com/codeready-toolchain/runtimescope/pkg/project"
	"github.com/codeready-toolchain/runtimescope/pkg/ringstore"
	"github.com/codeready-toolchain/runtimescope/pkg/session"
)

// Config controls port binding and the protocol timeouts of spec §5/§4.4.
type Config struct {
	Port             int
	MaxRetries       int
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	CommandTimeout   time.Duration
	ShutdownBudget   time.Duration
}

// DefaultConfig returns the spec's default ingest server timeouts.
func DefaultConfig(port int) Config {
	return Config{
		Port:             port,
		MaxRetries:       5,
		RetryDelay:       time.Second,
		HandshakeTimeout: 5 * time.Second,
		IdleTimeout:      60 * time.Second,
		CommandTimeout:   10 * time.Second,
		ShutdownBudget:   5 * time.Second,
	}
}

type pendingCommand struct {
	sessionID string
	done      chan commandResult
}

type commandResult struct {
	payload json.RawMessage
	err     error
}

// Server is the C4 ingest TCP listener.
type Server struct {
	cfg   Config
	store *ringstore.Store
	logs  *LogManager

	// sessions is optional; when set, every accepted event is also folded
	// into the session manager's running aggregates.
	sessions *session.Manager

	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool

	connMu sync.RWMutex
	conns  map[string]*connection

	pendingMu sync.Mutex
	pending   map[string]*pendingCommand

	metrics CommandMetrics
}

// CommandMetrics tracks pending-command outcomes for health reporting.
type CommandMetrics struct {
	Sent         atomic.Int64
	Completed    atomic.Int64
	TimedOut     atomic.Int64
	Disconnected atomic.Int64
}

// NewServer creates an ingest server. sessions may be nil if session
// aggregation is not wired up by the caller.
func NewServer(cfg Config, registry *project.Registry, store *ringstore.Store, logs *LogManager, sessions *session.Manager) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		logs:     logs,
		sessions: sessions,
		conns:    make(map[string]*connection),
		pending:  make(map[string]*pendingCommand),
	}
}

func (s *Server) sanitizeAppName(appName string) string {
	return project.SanitizeAppName(appName)
}

// Start binds the configured port, making up to cfg.MaxRetries attempts
// (at least one) cfg.RetryDelay apart, then begins accepting connections in
// the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)

	attempts := s.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var ln net.Listener
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		slog.Warn("ingest port bind failed, retrying", "addr", addr, "attempt", attempt, "error", err)
		if attempt < attempts {
			time.Sleep(s.cfg.RetryDelay)
		}
	}
	if err != nil {
		return fmt.Errorf("bind ingest port %d after %d attempts: %w", s.cfg.Port, attempts, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	slog.Info("ingest server listening", "addr", addr)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return
			}
			slog.Warn("ingest accept error", "error", err)
			continue
		}

		c := newConnection(s, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
		}()
	}
}

// registerConnection installs c as the active connection for its
// sessionID, demoting any prior connection for the same session to
// CLOSING (spec §4.4.1).
func (s *Server) registerConnection(c *connection) {
	s.connMu.Lock()
	prior, ok := s.conns[c.sessionID]
	s.conns[c.sessionID] = c
	s.connMu.Unlock()

	if ok && prior != c {
		slog.Info("displacing prior connection for session", "session_id", c.sessionID)
		prior.setState(stateClosing)
		_ = prior.conn.Close()
	}
}

// unregisterConnection removes c from the session registry and reports
// whether c was still the active connection for its session. A displaced
// connection (replaced by a newer handshake before it noticed) returns
// false, so its cleanup does not clobber the new connection's state.
func (s *Server) unregisterConnection(c *connection) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if current, ok := s.conns[c.sessionID]; ok && current == c {
		delete(s.conns, c.sessionID)
		return true
	}
	return false
}

func (s *Server) connectionFor(sessionID string) (*connection, bool) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	c, ok := s.conns[sessionID]
	return c, ok
}

// SendCommand dispatches command to sessionID and blocks until the client
// responds, the command times out, or the context is cancelled.
func (s *Server) SendCommand(ctx context.Context, sessionID string, command eventmodel.CommandName, params json.RawMessage) (json.RawMessage, error) {
	conn, ok := s.connectionFor(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: session %q not connected", ErrDisconnected, sessionID)
	}

	requestID := newRequestID()
	entry := &pendingCommand{sessionID: sessionID, done: make(chan commandResult, 1)}

	s.pendingMu.Lock()
	s.pending[requestID] = entry
	s.pendingMu.Unlock()
	s.metrics.Sent.Add(1)

	payload, err := jsonMarshal(eventmodel.CommandPayload{Command: command, RequestID: requestID, Params: params})
	if err != nil {
		s.removePending(requestID)
		return nil, fmt.Errorf("marshal command payload: %w", err)
	}

	frame := eventmodel.Frame{
		Type:      eventmodel.FrameCommand,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
	}
	if err := conn.writeFrame(frame); err != nil {
		s.removePending(requestID)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case result := <-entry.done:
		if result.err == nil {
			s.metrics.Completed.Add(1)
		} else if errors.Is(result.err, ErrDisconnected) || errors.Is(result.err, ErrShutdown) {
			s.metrics.Disconnected.Add(1)
		}
		return result.payload, result.err
	case <-timer.C:
		s.removePending(requestID)
		s.metrics.TimedOut.Add(1)
		return nil, &CommandError{RequestID: requestID, Err: ErrTimeout}
	case <-ctx.Done():
		s.removePending(requestID)
		return nil, ctx.Err()
	}
}

// Metrics returns a point-in-time copy of the pending-command counters.
func (s *Server) Metrics() (sent, completed, timedOut, disconnected int64) {
	return s.metrics.Sent.Load(), s.metrics.Completed.Load(), s.metrics.TimedOut.Load(), s.metrics.Disconnected.Load()
}

func (s *Server) removePending(requestID string) {
	s.pendingMu.Lock()
	delete(s.pending, requestID)
	s.pendingMu.Unlock()
}

// completeCommand resolves a pending command. A requestID with no matching
// entry (already completed, timed out, or a duplicate response) is a no-op
// (spec §4.4.2: "duplicate responses are ignored").
func (s *Server) completeCommand(requestID string, payload json.RawMessage, err error) {
	s.pendingMu.Lock()
	entry, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.pendingMu.Unlock()

	if !ok {
		return
	}
	entry.done <- commandResult{payload: payload, err: err}
}

// failPendingForSession completes every pending command belonging to
// sessionID with err (disconnect or shutdown).
func (s *Server) failPendingForSession(sessionID string, err error) {
	s.pendingMu.Lock()
	var toFail []*pendingCommand
	for id, entry := range s.pending {
		if entry.sessionID == sessionID {
			toFail = append(toFail, entry)
			delete(s.pending, id)
		}
	}
	s.pendingMu.Unlock()

	for _, entry := range toFail {
		entry.done <- commandResult{err: err}
	}
}

// Stop stops accepting new connections, fails every pending command with a
// shutdown error, and waits up to cfg.ShutdownBudget for in-flight
// connections to drain before forcing them closed.
func (s *Server) Stop() {
	s.shutdown.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.pendingMu.Lock()
	var all []*pendingCommand
	for id, entry := range s.pending {
		all = append(all, entry)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	for _, entry := range all {
		entry.done <- commandResult{err: ErrShutdown}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownBudget):
		slog.Warn("ingest shutdown budget exceeded, forcing remaining connections closed")
		s.connMu.RLock()
		for _, c := range s.conns {
			_ = c.conn.Close()
		}
		s.connMu.RUnlock()
		<-done
	}
}

// ConnectedSessionCount reports the number of sessions with an active
// connection, for health reporting.
func (s *Server) ConnectedSessionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.conns)
}
