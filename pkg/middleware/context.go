package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// Context copies request metadata into the request context so repositories
// and services can log it without access to echo.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, req.URL.Path)
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			if batchID := c.Param("batch_id"); batchID != "" {
				ctx = appctx.SetBatchID(ctx, batchID)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
