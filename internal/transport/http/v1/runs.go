package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// CreateRun enqueues a run.
// POST /v1/runs
func (h *Handler) CreateRun(c echo.Context) error {
	var req domain.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	run, err := h.service.CreateRun(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, run.Summary())
}

// ListRuns lists runs, optionally filtered by status.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	runs, err := h.service.ListRuns(c.Request().Context(), domain.RunStatus(c.QueryParam("status")), limit)
	if err != nil {
		return writeError(c, err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetRun returns a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun requests cancellation.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	run, err := h.service.CancelRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":           run.RunID,
		"status":           run.Status,
		"cancel_requested": run.CancelRequested,
	})
}

// ResumeRun resumes a blocked run in the background.
// POST /v1/runs/:run_id/resume
func (h *Handler) ResumeRun(c echo.Context) error {
	run, err := h.service.ResumeRun(c.Request().Context(), c.Param("run_id"), false)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, run.Summary())
}

// AddChunks appends source material to a queued run.
// POST /v1/runs/:run_id/chunks
func (h *Handler) AddChunks(c echo.Context) error {
	var req struct {
		Chunks []domain.Chunk `json:"chunks"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	n, err := h.service.AddChunks(c.Request().Context(), c.Param("run_id"), req.Chunks)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id": c.Param("run_id"),
		"added":  n,
	})
}
