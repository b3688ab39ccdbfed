package preferences

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetSettings)
	g.PUT("", h.SetSettings)
	g.GET("/presets", h.GetPresets)
}

// GetSettings returns the current preference set
// GET /api/v1/settings
func (h *Handlers) GetSettings(c echo.Context) error {
	prefs, err := h.service.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}

// SetSettings updates the preference set; absent fields keep their current
// values.
// PUT /api/v1/settings
func (h *Handlers) SetSettings(c echo.Context) error {
	prefs, err := h.service.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := c.Bind(prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Set(c.Request().Context(), *prefs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	updated, err := h.service.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, updated)
}

// GetPresets returns the named download format presets
// GET /api/v1/settings/presets
func (h *Handlers) GetPresets(c echo.Context) error {
	presets, err := LoadPresets()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, presets)
}
