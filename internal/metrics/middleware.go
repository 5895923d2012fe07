package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
)

// EchoMiddleware records HTTP metrics labelled by route pattern rather than raw path.
func EchoMiddleware(reg *Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo resolve the status before it is recorded
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			reg.RecordRequest(c.Request().Method, path, c.Response().Status, time.Since(start).Seconds())
			return nil
		}
	}
}
