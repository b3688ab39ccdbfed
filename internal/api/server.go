// Package api is the daemon's HTTP surface: REST routes for UIs, the
// message-dispatch endpoint mirroring the websocket action protocol, and the
// websocket upgrade itself.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fasttube/fasttube/internal/auth"
	"github.com/fasttube/fasttube/internal/config"
	"github.com/fasttube/fasttube/internal/downloads"
	"github.com/fasttube/fasttube/internal/history"
	"github.com/fasttube/fasttube/internal/native"
	"github.com/fasttube/fasttube/internal/preferences"
	"github.com/fasttube/fasttube/internal/scheduler"
	"github.com/fasttube/fasttube/internal/websocket"
)

// Deps are the collaborators the server exposes over HTTP. They are built and
// wired in main; the server only routes to them.
type Deps struct {
	Coordinator *downloads.Coordinator
	Manager     *native.Manager
	Preferences *preferences.Service
	History     *history.Service
	Auth        *auth.Service
	Scheduler   *scheduler.Scheduler
	Hub         *websocket.Hub
}

// Server handles HTTP requests for the fasttube API.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger zerolog.Logger
	deps   Deps
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	deps.Hub.SetMessageHandler(s.DispatchAction)

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Request body size limit
	s.echo.Use(middleware.BodyLimit("1M"))

	// CORS: extension origins vary per browser, the daemon listens on
	// loopback and auth is the bearer token.
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")

	protected := api.Group("")
	protected.Use(s.deps.Auth.Middleware())

	auth.NewHandlers(s.deps.Auth).RegisterRoutes(api.Group("/auth"), protected.Group("/auth"))

	// Message surface: one endpoint speaking the same action protocol as the
	// websocket, for UIs that prefer plain requests.
	protected.POST("/messages", s.handleMessage)

	downloadsGroup := protected.Group("/downloads")
	downloadsGroup.GET("", s.listDownloads)
	downloadsGroup.POST("", s.createDownload)
	downloadsGroup.GET("/:id", s.getDownload)
	downloadsGroup.POST("/:id/control", s.controlDownload)

	protected.POST("/probe", s.probeFormats)

	preferences.NewHandlers(s.deps.Preferences).RegisterRoutes(protected.Group("/settings"))
	history.NewHandlers(s.deps.History).RegisterRoutes(protected.Group("/history"))

	tasksGroup := protected.Group("/tasks")
	tasksGroup.GET("", s.listTasks)
	tasksGroup.POST("/:id/run", s.runTask)

	protected.GET("/ws", s.deps.Hub.HandleWebSocket)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.logger.Info().Str("address", addr).Msg("starting API server")
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"helperConnected": s.deps.Manager.Connected(),
		"activeDownloads": s.deps.Coordinator.ActiveCount(),
		"uiClients":       s.deps.Hub.ClientCount(),
		"time":            time.Now().UTC(),
	})
}
