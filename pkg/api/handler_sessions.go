package api

import (
	"context"
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
	"github.com/codeready-toolchain/runtimescope/pkg/queue"
	"github.com/codeready-toolchain/runtimescope/pkg/session"
)

// sessionsHandler handles GET /api/sessions.
func (s *Server) sessionsHandler(c *echo.Context) error {
	sessions := s.store.SessionInfo()
	if sessions == nil {
		sessions = []eventmodel.SessionInfo{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": sessions, "count": len(sessions)})
}

// sendCommandRequest is the body of POST /api/sessions/:id/command.
type sendCommandRequest struct {
	Command eventmodel.CommandName `json:"command"`
	Params  json.RawMessage        `json:"params,omitempty"`
}

// sendCommandHandler handles POST /api/sessions/:id/command, dispatching a
// command to a connected session and blocking for its response (spec §4.5:
// "command dispatch pass-through to C4").
func (s *Server) sendCommandHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	var req sendCommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Command == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}

	payload, err := s.ingestSrv.SendCommand(c.Request().Context(), sessionID, req.Command, req.Params)
	if err != nil {
		return mapCommandError(err)
	}
	return c.JSONBlob(http.StatusOK, payload)
}

// snapshotResult carries CreateSnapshot's outcome back from the worker pool
// to the HTTP handler that submitted it.
type snapshotResult struct {
	snapshot session.Snapshot
	err      error
}

// createSnapshotHandler handles POST /api/sessions/:id/snapshot, freezing
// the session's current running aggregates into a persisted snapshot (C6).
// Snapshot creation is allocation-heavy (it marshals and persists the full
// aggregate), so it runs on the snapshot worker pool rather than the
// request goroutine (spec §5).
func (s *Server) createSnapshotHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	resultCh := make(chan snapshotResult, 1)
	submitted := s.pool.Submit(queue.Job{
		SessionID: sessionID,
		Run: func(ctx context.Context) {
			snapshot, err := s.sessions.CreateSnapshot(ctx, sessionID)
			resultCh <- snapshotResult{snapshot: snapshot, err: err}
		},
	})
	if !submitted {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "snapshot queue is full, try again shortly")
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, res.err.Error())
		}
		return c.JSON(http.StatusOK, res.snapshot)
	case <-c.Request().Context().Done():
		return echo.NewHTTPError(http.StatusGatewayTimeout, "snapshot request cancelled")
	}
}

// sessionHistoryHandler handles GET /api/sessions/:id/history, returning up
// to 50 prior snapshots for the project named by the required ?project=
// query parameter. The :id path segment is not used to select snapshots.
func (s *Server) sessionHistoryHandler(c *echo.Context) error {
	project := c.QueryParam("project")
	if project == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project query parameter is required")
	}

	limit := 50
	history, err := s.sessions.GetSessionHistory(c.Request().Context(), project, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": history, "count": len(history)})
}
