// Command fasttubed is the local download daemon: it bridges browser UIs to
// the native helper process, tracks download state, and serves the HTTP and
// websocket API on loopback.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasttube/fasttube/internal/api"
	"github.com/fasttube/fasttube/internal/auth"
	"github.com/fasttube/fasttube/internal/config"
	"github.com/fasttube/fasttube/internal/database"
	"github.com/fasttube/fasttube/internal/downloads"
	"github.com/fasttube/fasttube/internal/history"
	"github.com/fasttube/fasttube/internal/logger"
	"github.com/fasttube/fasttube/internal/native"
	"github.com/fasttube/fasttube/internal/notification"
	"github.com/fasttube/fasttube/internal/preferences"
	"github.com/fasttube/fasttube/internal/scheduler"
	"github.com/fasttube/fasttube/internal/scheduler/tasks"
	"github.com/fasttube/fasttube/internal/startup"
	"github.com/fasttube/fasttube/internal/titles"
	"github.com/fasttube/fasttube/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting fasttubed")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()

	manager := native.NewManager(native.Config{
		Address:       cfg.Helper.Address(),
		DialTimeout:   cfg.Helper.DialTimeout,
		BackoffBase:   cfg.Helper.BackoffBase,
		BackoffCap:    cfg.Helper.BackoffCap,
		MaxReconnects: cfg.Helper.MaxReconnects,
	}, log.Logger)

	coordinator := downloads.New(downloads.Config{
		CancelledGrace: cfg.Downloads.CancelledGrace,
		FinishedGrace:  cfg.Downloads.FinishedGrace,
		ErrorGrace:     cfg.Downloads.ErrorGrace,
		MaxAge:         cfg.Downloads.MaxAge,
		IdleTimeout:    cfg.Downloads.IdleTimeout,
	}, downloads.NewSQLStore(db), manager, hub, log.Logger)

	prefsService := preferences.NewService(db)
	historyService := history.NewService(db, log.Logger)
	notificationService := notification.NewService(hub, prefsService, log.Logger)
	notificationService.SetWebhook(notification.WebhookSettings{
		URL:     cfg.Notifications.WebhookURL,
		Method:  cfg.Notifications.WebhookMethod,
		Headers: cfg.Notifications.WebhookHeaders,
	})

	coordinator.SetDefaults(prefsService)
	coordinator.SetHistory(api.NewHistorySink(historyService))
	coordinator.SetNotifier(notificationService)
	coordinator.SetTitleResolver(titles.NewResolver(log.Logger))

	// Helper messages flow into the coordinator; helper trouble reaches UIs
	// as nativeError broadcasts.
	manager.SetMessageHandler(func(msg *native.Message) {
		coordinator.ApplyUpdate(msg.Normalize())
	})
	manager.SetSendFailureHandler(coordinator.MarkSendFailed)
	manager.SetErrorHandler(notificationService.HelperError)

	authService, err := auth.NewService(db, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth")
	}

	if err := coordinator.Restore(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to restore download state")
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.Register(sched, coordinator); err != nil {
		log.Fatal().Err(err).Msg("failed to register maintenance tasks")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// Connect to the helper if it is already running. Not fatal: the manager
	// reconnects on demand and every send falls back to a one-shot call.
	go func() {
		retryCfg := startup.DefaultRetryConfig()
		retryCfg.InitialDelay = cfg.Helper.BackoffBase
		retryCfg.MaxDelay = cfg.Helper.BackoffCap
		retryCfg.MaxAttempts = cfg.Helper.MaxReconnects
		err := startup.WithRetry(context.Background(), "helper connect", retryCfg,
			manager.EnsureConnection, &log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("native helper not reachable at startup")
		}
	}()

	server := api.NewServer(cfg, api.Deps{
		Coordinator: coordinator,
		Manager:     manager,
		Preferences: prefsService,
		History:     historyService,
		Auth:        authService,
		Scheduler:   sched,
		Hub:         hub,
	}, log.Logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Info().Err(err).Msg("API server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
	manager.Close()
	coordinator.Close()
}
