package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// Logger writes one line per request after the error handler has set the
// final status. Uploads can be large, so the request size is the declared
// Content-Length rather than a count.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := appctx.Fields(req.Context())
			fields["status"] = res.Status
			fields["route"] = c.Path()
			fields["uri"] = req.RequestURI
			fields["user_agent"] = req.UserAgent()
			fields["duration_ms"] = time.Since(start).Milliseconds()
			fields["request_bytes"] = req.ContentLength
			fields["response_bytes"] = res.Size

			log := logger.WithContext(req.Context()).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}
