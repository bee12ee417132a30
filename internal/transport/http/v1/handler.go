// Package v1 provides the public HTTP API for pipeline runs.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Nitesh802/customerintel-sub008/internal/service"
	"github.com/Nitesh802/customerintel-sub008/internal/transport/ws"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	stream  *ws.Server
}

// NewHandler creates a new handler. stream may be nil, in which case the
// websocket route is not registered.
func NewHandler(service *service.Service, stream *ws.Server) *Handler {
	return &Handler{
		service: service,
		stream:  stream,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Run lifecycle
	e.GET("/v1/runs", h.ListRuns)
	e.POST("/v1/runs", h.CreateRun)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
	e.POST("/v1/runs/:run_id/resume", h.ResumeRun)
	e.POST("/v1/runs/:run_id/chunks", h.AddChunks)

	// Results
	e.GET("/v1/runs/:run_id/phases", h.ListPhaseResults)
	e.GET("/v1/runs/:run_id/artifacts", h.ListArtifacts)
	e.GET("/v1/runs/:run_id/artifacts/:name", h.GetArtifact)
	e.GET("/v1/runs/:run_id/diversity", h.GetDiversityReport)
	e.GET("/v1/runs/:run_id/bundle", h.GetBundle)
	e.POST("/v1/runs/:run_id/bundle/rebuild", h.RebuildBundle)
	e.GET("/v1/runs/:run_id/export", h.ExportRun)

	// Telemetry
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	if h.stream != nil {
		e.GET("/v1/runs/:run_id/stream", h.stream.HandleStream)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// writeError maps service errors onto status codes.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState):
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
