package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

func TestSendCommandHandlerRequiresCommand(t *testing.T) {
	s, _ := newTestAPIServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/command", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("sess-1")

	err := s.sendCommandHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestCreateSnapshotHandlerReturnsFrozenAggregate(t *testing.T) {
	s, store := newTestAPIServer(t)

	networkData := []byte(`{"url":"https://api.example.com/users/1","method":"GET","status":200,"duration":50}`)
	e := eventmodel.Event{EventID: "e1", SessionID: "sess-1", Kind: eventmodel.KindNetwork, Data: networkData}
	store.Add(e)
	s.sessions.Observe("demo", e)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/snapshot", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("sess-1")

	require.NoError(t, s.createSnapshotHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")
}

func TestSessionHistoryHandlerRequiresProject(t *testing.T) {
	s, _ := newTestAPIServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/history", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("sess-1")

	err := s.sessionHistoryHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
