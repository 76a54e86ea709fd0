package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/queue"
	"github.com/codeready-toolchain/runtimescope/pkg/version"
)

// HealthResponse is the body returned by GET /api/health. The spec's route
// table names only {status, timestamp}; the remaining fields are
// supplemented operational detail (SPEC_FULL.md §4, health endpoint).
type HealthResponse struct {
	Status               string            `json:"status"`
	Version              string            `json:"version"`
	Timestamp            int64             `json:"timestamp"`
	RingBufferSize       int               `json:"ringBufferSize"`
	RingBufferCapacity   int               `json:"ringBufferCapacity"`
	ConnectedSessions    int               `json:"connectedSessions"`
	Subscribers          int               `json:"subscribers"`
	FlushErrorsByProject map[string]int64  `json:"flushErrorsByProject,omitempty"`
	WorkerPool           *queue.PoolHealth `json:"workerPool,omitempty"`
	Commands             *commandMetrics   `json:"commands,omitempty"`
}

type commandMetrics struct {
	Sent         int64 `json:"sent"`
	Completed    int64 `json:"completed"`
	TimedOut     int64 `json:"timedOut"`
	Disconnected int64 `json:"disconnected"`
}

// healthHandler handles GET /api/health.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{
		Status:             "ok",
		Version:            version.Full(),
		Timestamp:          time.Now().UnixMilli(),
		RingBufferSize:     s.store.Len(),
		RingBufferCapacity: s.store.Capacity(),
		Subscribers:        s.store.Bus().SubscriberCount(),
	}

	if s.ingestSrv != nil {
		resp.ConnectedSessions = s.ingestSrv.ConnectedSessionCount()
		sent, completed, timedOut, disconnected := s.ingestSrv.Metrics()
		resp.Commands = &commandMetrics{Sent: sent, Completed: completed, TimedOut: timedOut, Disconnected: disconnected}
	}
	if s.logs != nil {
		resp.FlushErrorsByProject = s.logs.FlushErrorCounts()
	}
	if s.pool != nil {
		h := s.pool.Health()
		resp.WorkerPool = &h
	}

	return c.JSON(http.StatusOK, resp)
}
