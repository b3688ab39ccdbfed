package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type StatusResponse struct {
	PasswordSet bool `json:"passwordSet"`
}

type SetPasswordRequest struct {
	Password string `json:"password"`
}

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the public auth routes; password changes go on the
// protected group.
func (h *Handlers) RegisterRoutes(public, protected *echo.Group) {
	public.POST("/login", h.Login)
	public.GET("/status", h.Status)
	protected.POST("/password", h.SetPassword)
}

// Login exchanges the API password for a bearer token.
// POST /api/v1/auth/login
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ValidatePassword(req.Password); err != nil {
		switch {
		case errors.Is(err, ErrNoPasswordSet):
			return echo.NewHTTPError(http.StatusBadRequest, "no password configured")
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	token, err := h.service.GenerateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, LoginResponse{Token: token})
}

// Status reports whether a password is configured.
// GET /api/v1/auth/status
func (h *Handlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{PasswordSet: h.service.IsPasswordSet()})
}

// SetPassword sets or replaces the API password.
// POST /api/v1/auth/password
func (h *Handlers) SetPassword(c echo.Context) error {
	var req SetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.SetPassword(req.Password); err != nil {
		if errors.Is(err, ErrPasswordRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, "password is required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
