package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// ListPhaseResults returns the per-phase outcomes of a run.
// GET /v1/runs/:run_id/phases
func (h *Handler) ListPhaseResults(c echo.Context) error {
	results, err := h.service.ListPhaseResults(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	if results == nil {
		results = []domain.PhaseResult{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"phases": results,
	})
}

// ListArtifacts returns every artifact keyed by logical name.
// GET /v1/runs/:run_id/artifacts
func (h *Handler) ListArtifacts(c echo.Context) error {
	arts, err := h.service.ListArtifacts(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"artifacts": arts,
	})
}

// GetArtifact returns one artifact by logical name.
// GET /v1/runs/:run_id/artifacts/:name
func (h *Handler) GetArtifact(c echo.Context) error {
	data, err := h.service.GetArtifact(c.Request().Context(), c.Param("run_id"), c.Param("name"))
	if err != nil {
		return writeError(c, err)
	}
	if data == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "artifact not found"})
	}
	return c.JSON(http.StatusOK, data)
}

// GetDiversityReport returns the cached gate report.
// GET /v1/runs/:run_id/diversity
func (h *Handler) GetDiversityReport(c echo.Context) error {
	report, err := h.service.GetDiversityReport(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	if report == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "diversity report not found"})
	}
	return c.JSON(http.StatusOK, report)
}

// GetBundle returns the synthesis bundle.
// GET /v1/runs/:run_id/bundle
func (h *Handler) GetBundle(c echo.Context) error {
	bundle, err := h.service.GetBundle(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	if bundle == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "bundle not found"})
	}
	return c.JSON(http.StatusOK, bundle)
}

// RebuildBundle re-assembles the bundle from stored artifacts.
// POST /v1/runs/:run_id/bundle/rebuild
func (h *Handler) RebuildBundle(c echo.Context) error {
	bundle, err := h.service.RebuildBundle(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// ExportRun streams the diagnostic zip archive.
// GET /v1/runs/:run_id/export
func (h *Handler) ExportRun(c echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	// check first so a missing run still gets a JSON error
	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		return writeError(c, err)
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	name := fmt.Sprintf("%s-%s.zip", runID, time.Now().UTC().Format("20060102T150405Z"))
	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().WriteHeader(http.StatusOK)
	_, err = h.service.Export(ctx, runID, c.Response())
	return err
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		for _, typ := range strings.Split(t, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				types = append(types, typ)
			}
		}
	}

	// fetch one extra to report has_more
	events, err := h.service.GetRunEvents(c.Request().Context(), runID, afterTs, types, limit+1)
	if err != nil {
		return writeError(c, err)
	}
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": hasMore,
	})
}
