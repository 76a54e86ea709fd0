package api

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
	"github.com/codeready-toolchain/runtimescope/pkg/ringstore"
)

// eventsResponse is the {data, count} envelope shared by every events route
// (spec §6.2).
type eventsResponse struct {
	Data  []eventmodel.Event `json:"data"`
	Count int                `json:"count"`
}

// parseFilter builds a ringstore.Filter from query parameters common to
// every events route. Invalid since_seconds or status values parse to an
// omitted filter rather than a 400 (spec §6.2).
func parseFilter(c *echo.Context) ringstore.Filter {
	f := ringstore.Filter{SessionID: c.QueryParam("session_id")}

	if since, err := strconv.ParseInt(c.QueryParam("since_seconds"), 10, 64); err == nil && since > 0 {
		f.SinceSeconds = since
	}
	if status, err := strconv.Atoi(c.QueryParam("status")); err == nil {
		f.Status = status
	}
	f.URLPattern = c.QueryParam("url_pattern")
	f.Method = c.QueryParam("method")
	f.Level = c.QueryParam("level")
	f.Search = c.QueryParam("search")
	f.StoreID = c.QueryParam("store_id")
	f.ComponentName = c.QueryParam("component")
	f.MetricName = c.QueryParam("metric")
	f.Table = c.QueryParam("table")
	if min, err := strconv.ParseFloat(c.QueryParam("min_duration_ms"), 64); err == nil {
		f.MinDurationMs = min
	}
	return f
}

func respondEvents(c *echo.Context, events []eventmodel.Event) error {
	if events == nil {
		events = []eventmodel.Event{}
	}
	return c.JSON(http.StatusOK, eventsResponse{Data: events, Count: len(events)})
}

func (s *Server) networkEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.Network(parseFilter(c)))
}

func (s *Server) consoleEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.Console(parseFilter(c)))
}

func (s *Server) stateEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.State(parseFilter(c)))
}

func (s *Server) rendersEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.Renders(parseFilter(c)))
}

func (s *Server) performanceEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.Performance(parseFilter(c)))
}

func (s *Server) databaseEventsHandler(c *echo.Context) error {
	return respondEvents(c, s.store.Database(parseFilter(c)))
}

func (s *Server) timelineHandler(c *echo.Context) error {
	f := parseFilter(c)

	var kinds []eventmodel.Kind
	if raw := c.QueryParam("event_types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				kinds = append(kinds, eventmodel.Kind(part))
			}
		}
	}

	return respondEvents(c, s.store.Timeline(f, kinds))
}

// clearEventsHandler handles DELETE /api/events.
func (s *Server) clearEventsHandler(c *echo.Context) error {
	cleared := s.store.Clear()
	return c.JSON(http.StatusOK, map[string]int{"cleared": cleared})
}
