package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// projectsHandler handles GET /api/projects, aggregating session summaries
// by project (spec §6.2; lastSeenAt is a supplemented field per
// SPEC_FULL.md §4).
func (s *Server) projectsHandler(c *echo.Context) error {
	sessions := s.store.SessionInfo()

	type projectAgg struct {
		sessions    []string
		isConnected bool
		eventCount  int64
		lastSeenAt  int64
	}
	byProject := make(map[string]*projectAgg)

	for _, sess := range sessions {
		// SessionInfo does not carry project directly; sessions are keyed
		// by appName here since a project's directory name derives from it.
		name := sess.AppName
		if name == "" {
			continue
		}
		agg, ok := byProject[name]
		if !ok {
			agg = &projectAgg{}
			byProject[name] = agg
		}
		agg.sessions = append(agg.sessions, sess.SessionID)
		agg.eventCount += sess.EventCount
		if sess.IsConnected {
			agg.isConnected = true
		}
		if sess.ConnectedAt > agg.lastSeenAt {
			agg.lastSeenAt = sess.ConnectedAt
		}
	}

	out := make([]eventmodel.ProjectInfo, 0, len(byProject))
	for name, agg := range byProject {
		out = append(out, eventmodel.ProjectInfo{
			AppName:     name,
			Sessions:    agg.sessions,
			IsConnected: agg.isConnected,
			EventCount:  agg.eventCount,
			LastSeenAt:  agg.lastSeenAt,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"data": out, "count": len(out)})
}
