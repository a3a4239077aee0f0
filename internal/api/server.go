package api

import (
	"bikedash/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// NewServer builds the echo instance with middleware and routes.
func NewServer(cfg config.ServerConfig, h *Handler, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	if cfg.RateLimit.Enabled {
		e.Use(RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger))
	}

	h.AllowOrigins(cfg.AllowedOrigins)
	h.RegisterRoutes(e)
	return e
}
