package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

type connState int32

const (
	stateAwaitHandshake connState = iota
	stateConnected
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAwaitHandshake:
		return "AWAIT_HANDSHAKE"
	case stateConnected:
		return "CONNECTED"
	case stateClosing:
		return "CLOSING"
	default:
		return "CLOSED"
	}
}

// maxConsecutiveParseErrors triggers CLOSING per spec §4.4.3.
const maxConsecutiveParseErrors = 3

// connection owns one accepted socket and runs its read loop on the calling
// goroutine. Outbound writes are serialized through writeMu (spec §4.4.3,
// §5 "outbound writes are serialized per connection").
type connection struct {
	srv  *Server
	conn net.Conn

	state atomic.Int32

	sessionID string
	project   string

	writeMu     sync.Mutex
	lastFrameAt atomic.Int64
	parseErrors atomic.Int32

	closeOnce sync.Once
}

func newConnection(srv *Server, conn net.Conn) *connection {
	c := &connection{srv: srv, conn: conn}
	c.state.Store(int32(stateAwaitHandshake))
	c.lastFrameAt.Store(time.Now().UnixMilli())
	return c
}

func (c *connection) getState() connState  { return connState(c.state.Load()) }
func (c *connection) setState(s connState) { c.state.Store(int32(s)) }

// serve runs the connection's read loop until it closes for any reason.
func (c *connection) serve(ctx context.Context) {
	defer c.cleanup()

	handshakeDeadline := time.Now().Add(c.srv.cfg.HandshakeTimeout)
	_ = c.conn.SetReadDeadline(handshakeDeadline)

	idleTicker := time.NewTicker(c.srv.cfg.IdleTimeout / 4)
	defer idleTicker.Stop()
	go c.watchIdle(ctx, idleTicker)

	for {
		if c.getState() == stateClosing || c.getState() == stateClosed {
			return
		}

		frame, err := ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				n := c.parseErrors.Add(1)
				slog.Warn("malformed frame on read", "error", err, "session_id", c.sessionID, "consecutive_errors", n)
				if n >= maxConsecutiveParseErrors {
					c.setState(stateClosing)
					return
				}
				continue
			}
			if c.getState() == stateAwaitHandshake {
				slog.Warn("connection failed to complete handshake in time", "error", err)
			}
			return
		}
		c.lastFrameAt.Store(time.Now().UnixMilli())
		_ = c.conn.SetReadDeadline(time.Time{})

		if err := c.handleFrame(ctx, frame); err != nil {
			n := c.parseErrors.Add(1)
			slog.Warn("frame handling error", "error", err, "session_id", c.sessionID, "consecutive_errors", n)
			if n >= maxConsecutiveParseErrors {
				c.setState(stateClosing)
				return
			}
			continue
		}
		c.parseErrors.Store(0)
	}
}

func (c *connection) watchIdle(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.getState() == stateClosed || c.getState() == stateClosing {
				return
			}
			if time.Since(time.UnixMilli(c.lastFrameAt.Load())) > c.srv.cfg.IdleTimeout {
				slog.Info("connection idle-dead, closing", "session_id", c.sessionID)
				c.setState(stateClosing)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *connection) handleFrame(ctx context.Context, frame eventmodel.Frame) error {
	switch c.getState() {
	case stateAwaitHandshake:
		if frame.Type != eventmodel.FrameHandshake {
			return fmt.Errorf("%w: expected handshake, got %q", ErrProtocol, frame.Type)
		}
		return c.handleHandshake(ctx, frame)
	case stateConnected:
		switch frame.Type {
		case eventmodel.FrameEvent:
			return c.handleEvent(ctx, frame)
		case eventmodel.FrameHeartbeat:
			return nil
		case eventmodel.FrameCommandResponse:
			return c.handleCommandResponse(frame)
		default:
			return fmt.Errorf("%w: unexpected frame type %q in CONNECTED", ErrProtocol, frame.Type)
		}
	default:
		return fmt.Errorf("%w: frame received in state %s", ErrProtocol, c.getState())
	}
}

func (c *connection) handleHandshake(ctx context.Context, frame eventmodel.Frame) error {
	var payload eventmodel.HandshakePayload
	if err := unmarshalPayload(frame.Payload, &payload); err != nil {
		return err
	}
	if payload.SessionID == "" || payload.AppName == "" {
		return fmt.Errorf("%w: handshake missing appName or sessionId", ErrProtocol)
	}

	projectName := c.srv.sanitizeAppName(payload.AppName)
	if _, err := c.srv.logs.registry.EnsureProjectDir(projectName); err != nil {
		return fmt.Errorf("ensure project dir: %w", err)
	}

	c.sessionID = payload.SessionID
	c.project = projectName

	c.srv.registerConnection(c)

	now := time.Now().UnixMilli()
	sess := eventmodel.Session{
		SessionID:   payload.SessionID,
		AppName:     payload.AppName,
		Project:     projectName,
		SDKVersion:  payload.SDKVersion,
		ConnectedAt: now,
		IsConnected: true,
		BuildMeta:   payload.BuildMeta,
	}

	log, err := c.srv.logs.GetOrOpen(ctx, projectName)
	if err != nil {
		return fmt.Errorf("open durable log: %w", err)
	}
	if err := log.UpsertSession(ctx, sess); err != nil {
		slog.Error("failed to upsert session", "session_id", c.sessionID, "error", err)
	}

	sessionBody, _ := jsonMarshal(eventmodel.SessionBody{
		AppName: payload.AppName, ConnectedAt: now, SDKVersion: payload.SDKVersion, BuildMeta: payload.BuildMeta,
	})
	synthetic := eventmodel.Event{
		EventID:   newEventID(),
		SessionID: payload.SessionID,
		Timestamp: now,
		Kind:      eventmodel.KindSession,
		Data:      sessionBody,
	}
	c.srv.store.Add(synthetic)
	c.srv.store.MarkConnected(payload.SessionID, true)
	log.Add(synthetic, projectName)

	c.setState(stateConnected)
	slog.Info("session handshake accepted", "session_id", c.sessionID, "project", projectName)
	return nil
}

func (c *connection) handleEvent(ctx context.Context, frame eventmodel.Frame) error {
	var payload eventmodel.EventPayload
	if err := unmarshalPayload(frame.Payload, &payload); err != nil {
		return err
	}

	log, err := c.srv.logs.GetOrOpen(ctx, c.project)
	if err != nil {
		return fmt.Errorf("open durable log: %w", err)
	}

	for _, e := range payload.Events {
		if e.SessionID == "" {
			e.SessionID = c.sessionID
		}
		c.srv.store.Add(e)
		log.Add(e, c.project)
		if err := log.IncrementEventCount(ctx, c.sessionID); err != nil {
			slog.Warn("failed to increment session event count", "session_id", c.sessionID, "error", err)
		}
		if c.srv.sessions != nil {
			c.srv.sessions.Observe(c.project, e)
		}
	}
	return nil
}

func (c *connection) handleCommandResponse(frame eventmodel.Frame) error {
	var payload eventmodel.CommandResponsePayload
	if err := unmarshalPayload(frame.Payload, &payload); err != nil {
		return err
	}
	c.srv.completeCommand(payload.RequestID, payload.Payload, nil)
	return nil
}

// writeFrame serializes outbound writes per connection.
func (c *connection) writeFrame(f eventmodel.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, f)
}

func (c *connection) cleanup() {
	c.closeOnce.Do(func() {
		c.setState(stateClosed)
		_ = c.conn.Close()

		if c.sessionID == "" {
			return
		}

		wasActive := c.srv.unregisterConnection(c)
		c.srv.failPendingForSession(c.sessionID, ErrDisconnected)
		if !wasActive {
			// Displaced by a newer handshake for the same session; the new
			// connection owns is_connected/disconnect bookkeeping now.
			return
		}

		c.srv.store.MarkConnected(c.sessionID, false)

		ctx := context.Background()
		if log, err := c.srv.logs.GetOrOpen(ctx, c.project); err == nil {
			if err := log.MarkDisconnected(ctx, c.sessionID, time.Now().UnixMilli()); err != nil {
				slog.Error("failed to mark session disconnected", "session_id", c.sessionID, "error", err)
			}
		}
		slog.Info("session disconnected", "session_id", c.sessionID)
	})
}
