package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/runtimescope/pkg/ingest"
)

// mapCommandError maps ingest command-dispatch errors to HTTP responses.
func mapCommandError(err error) *echo.HTTPError {
	var cmdErr *ingest.CommandError
	if errors.As(err, &cmdErr) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, cmdErr.Error())
	}
	if errors.Is(err, ingest.ErrDisconnected) {
		return echo.NewHTTPError(http.StatusConflict, "session is not connected")
	}
	if errors.Is(err, ingest.ErrShutdown) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "collector is shutting down")
	}
	if errors.Is(err, ingest.ErrTimeout) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "command timed out")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
