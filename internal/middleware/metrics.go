package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/metrics"
)

// Metrics records the latency of every request, labelled by the route
// pattern rather than the raw path so schedule ids do not explode the
// label set.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let Echo write the error response first so the status is final
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			metrics.HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				path,
				strconv.Itoa(c.Response().Status),
			).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
