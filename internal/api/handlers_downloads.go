package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fasttube/fasttube/internal/downloads"
)

// listDownloads returns the active download records keyed by id.
// GET /api/v1/downloads
func (s *Server) listDownloads(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Coordinator.List())
}

// createDownload queues a new download.
// POST /api/v1/downloads
func (s *Server) createDownload(c echo.Context) error {
	var req downloads.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id, err := s.deps.Coordinator.Enqueue(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, downloads.ErrMissingURL) {
			return echo.NewHTTPError(http.StatusBadRequest, "url is required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]string{"status": "queued", "id": id})
}

// getDownload returns one download record.
// GET /api/v1/downloads/:id
func (s *Server) getDownload(c echo.Context) error {
	rec := s.deps.Coordinator.Get(c.Param("id"))
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "download not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// controlDownload applies pause/resume/cancel/open to a download. Unknown ids
// are a no-op by design of the message protocol, but the REST surface reports
// them.
// POST /api/v1/downloads/:id/control
func (s *Server) controlDownload(c echo.Context) error {
	var req struct {
		Control string `json:"control"`
	}
	if err := c.Bind(&req); err != nil || req.Control == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "control is required")
	}

	id := c.Param("id")
	if s.deps.Coordinator.Get(id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "download not found")
	}

	s.deps.Coordinator.Control(c.Request().Context(), req.Control, id)
	return c.NoContent(http.StatusAccepted)
}

// probeFormats asks the helper for the formats available at a URL.
// POST /api/v1/probe
func (s *Server) probeFormats(c echo.Context) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	msg, err := s.deps.Manager.Probe(c.Request().Context(), req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "native helper unavailable")
	}
	return c.JSON(http.StatusOK, msg)
}

// listTasks returns the scheduled maintenance tasks.
// GET /api/v1/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Scheduler.ListTasks())
}

// runTask triggers a maintenance task immediately.
// POST /api/v1/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	if err := s.deps.Scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
