package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance_notification_service/internal/app"
	"finance_notification_service/internal/domain/delivery"
	"finance_notification_service/internal/infra/channels"
	"finance_notification_service/internal/infra/config"
	idb "finance_notification_service/internal/infra/database"
	"finance_notification_service/internal/infra/logger"
	"finance_notification_service/internal/infra/scheduler"
	"finance_notification_service/internal/infra/ws"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.WithField("environment", cfg.Environment).Info("recurring finance notifier starting")

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("database connection established")

	definitionRepo := idb.NewPostgresDefinitionRepository(db)
	ledgerRepo := idb.NewPostgresLedgerRepository(db)
	notificationRepo := idb.NewPostgresNotificationRepository(db)
	preferenceRepo := idb.NewPostgresPreferenceRepository(db)
	recipientRepo := idb.NewPostgresRecipientRepository(db)
	deviceRepo := idb.NewPostgresDeviceRepository(db)

	registry := ws.NewRegistry(cfg.SendTimeout, log)
	defer registry.Close()

	var emailSender delivery.EmailSender
	if cfg.SMTPHost != "" {
		emailSender = channels.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	} else {
		log.Warn("SMTP_HOST not set; email channel disabled")
	}

	var pushSender delivery.PushSender
	if cfg.PushServerKey != "" {
		pushSender = channels.NewHTTPPushSender(cfg.PushEndpoint, cfg.PushServerKey)
	} else {
		log.Warn("PUSH_SERVER_KEY not set; push channel disabled")
	}

	var telegramSender delivery.TelegramSender
	if cfg.TelegramToken != "" {
		bot, err := telebot.NewBot(telebot.Settings{Token: cfg.TelegramToken})
		if err != nil {
			log.Fatalf("could not create telegram bot: %v", err)
		}
		telegramSender = channels.NewTelebotSender(bot)
	}

	dispatcher := app.NewDispatcher(
		notificationRepo, preferenceRepo, recipientRepo, deviceRepo,
		registry, emailSender, pushSender, telegramSender,
		log, cfg.SendTimeout,
	)

	processor := app.NewScheduleProcessor(
		definitionRepo, ledgerRepo, dispatcher, registry,
		log, cfg.DefinitionTimeout, cfg.TickWorkers,
	)

	tickScheduler := scheduler.NewTickScheduler(processor, log, cfg.TickCronSpec, cfg.TickTimeout)
	if err := tickScheduler.Start(); err != nil {
		log.Fatalf("could not start tick scheduler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(registry, log))
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("websocket endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	tickScheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	log.Info("shut down gracefully")
}
