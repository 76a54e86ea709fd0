package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// corsMiddleware allows any origin to read the facade's responses. The
// facade binds to loopback only, so the risk surface is the local machine.
func corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		c.Response().Header().Set("Access-Control-Allow-Origin", "*")
		c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type")
		return next(c)
	}
}

// optionsHandler answers CORS preflight requests with a bare 204 (spec §6.2).
func optionsHandler(c *echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// securityHeaders sets standard response headers, matching the facade's
// loopback-only exposure.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// jsonErrorHandler overrides echo's default HTML error rendering so every
// error, including 404s on unknown routes, comes back as JSON (spec §6.2,
// §7: "facade errors always carry a JSON body").
func jsonErrorHandler(err error, c *echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	var werr error
	if code == http.StatusNotFound {
		werr = c.JSON(code, map[string]string{"error": message, "path": c.Request().URL.Path})
	} else {
		werr = c.JSON(code, map[string]string{"error": message})
	}
	if werr != nil {
		_ = werr
	}
}
