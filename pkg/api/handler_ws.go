package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// wsEventFrame is the frame shape pushed to live WebSocket subscribers
// (spec §6.2: `{type:"event", data:Event}`).
type wsEventFrame struct {
	Type string           `json:"type"`
	Data eventmodel.Event `json:"data"`
}

// wsHandler upgrades GET /api/ws/events to a WebSocket and streams every
// event published to the ring store's bus, best-effort (spec §4.3, §9: a
// slow reader drops events rather than stalling the publisher).
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Loopback-only server; the dashboard and CLI tooling that connect
		// here are not expected to carry a stable Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	sub := s.store.Bus().Subscribe()
	defer s.store.Bus().Unsubscribe(sub)

	// A read loop detects client-initiated close without the write side
	// blocking on a dead socket; any client message is discarded.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			frame := wsEventFrame{Type: "event", Data: e}
			body, err := json.Marshal(frame)
			if err != nil {
				slog.Warn("failed to marshal ws event frame", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
				return nil
			}
		}
	}
}
