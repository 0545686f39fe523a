package httpapi

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

// RequestIDHeader is the header carrying each request's correlation id, both
// inbound (honored if already set by an upstream proxy) and outbound.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a unique id to every request that doesn't already carry
// one from upstream, echoing it back on the response so client and server
// logs can be correlated.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			c.Response().Header().Set(RequestIDHeader, id)
			c.Set(RequestIDHeader, id)
			return next(c)
		}
	}
}
