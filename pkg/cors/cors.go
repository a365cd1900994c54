package cors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Middleware allows any origin, the service has no cookie-based state worth
// protecting and the websocket endpoint is open by design.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Accept,Content-Type")
		h.Set("Access-Control-Max-Age", "86400")
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusNoContent)
		}
		return next(c)
	}
}
