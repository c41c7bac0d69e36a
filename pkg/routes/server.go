package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

type ServerConfig struct {
	ServiceName    string
	AllowOrigins   []string
	AllowMethods   []string
	MaxUploadBytes int64
}

// NewServer builds the echo instance with the shared middleware chain. The
// metrics middleware sits outside the logger so it sees the status the error
// handler wrote.
func NewServer(cfg ServerConfig, eng Engine, checker *health.Checker, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.ServiceName != "" {
		e.Use(otelecho.Middleware(cfg.ServiceName))
	}
	e.Use(middleware.Metrics())
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	if checker != nil {
		checker.RegisterRoutes(e)
	}
	Register(e, NewHandler(eng, cfg.MaxUploadBytes, logger))

	return e
}
