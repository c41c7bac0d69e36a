package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// Metrics records request counts and latencies by route template, so
// /batches/:batch_id is one series no matter how many batches exist.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordHTTPRequest(c.Request().Method, route, strconv.Itoa(status), time.Since(start).Seconds())
			return err
		}
	}
}
