// Package http provides the HTTP server for the pipeline.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Nitesh802/customerintel-sub008/internal/service"
	v1 "github.com/Nitesh802/customerintel-sub008/internal/transport/http/v1"
	"github.com/Nitesh802/customerintel-sub008/internal/transport/ws"
)

// NewServer creates and configures the external-facing HTTP server.
// stream may be nil to serve without the websocket route.
func NewServer(svc *service.Service, stream *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc, stream).RegisterRoutes(e)

	return e
}
