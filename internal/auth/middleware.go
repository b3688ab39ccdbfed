package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware returns an echo middleware enforcing bearer-token auth. When no
// password has been configured the middleware is a no-op, the daemon only
// listens on loopback.
func (s *Service) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.IsPasswordSet() {
				return next(c)
			}

			token := bearerToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			if _, err := s.ValidateToken(token); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket clients cannot set headers from a browser, allow a query
	// parameter as well.
	return r.URL.Query().Get("token")
}
