package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/Algovate2025/telegram-support-bot/internal/api/http"
	"github.com/Algovate2025/telegram-support-bot/internal/api/http/handlers"
	"github.com/Algovate2025/telegram-support-bot/internal/config"
	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/gateway"
	"github.com/Algovate2025/telegram-support-bot/internal/observability"
	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
	"github.com/Algovate2025/telegram-support-bot/internal/service"
	"github.com/Algovate2025/telegram-support-bot/internal/worker"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.NewStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	if err := persistence.RunMigrations(ctx, store, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	ticketRepo := repository.NewTicketRepository(store.DB)
	outboxRepo := repository.NewOutboxRepository(store.DB)
	messageRepo := repository.NewMessageRepository(store.DB)
	noteRepo := repository.NewNoteRepository(store.DB)
	leaseRepo := repository.NewLeaseRepository(store.DB)

	dispatcher := events.NewInMemoryDispatcher(logger)

	escalationPolicy := domain.EscalationPolicy{
		ThresholdNormal: time.Duration(cfg.Escalation.ThresholdNormalHours) * time.Hour,
		ThresholdVIP:    time.Duration(cfg.Escalation.ThresholdVIPHours) * time.Hour,
		Grace1Fraction:  cfg.Escalation.Grace1Fraction,
		Grace2Fraction:  cfg.Escalation.Grace2Fraction,
	}
	retryPolicy := service.RetryPolicy{
		Base:        time.Duration(cfg.Outbox.RetryBaseSec) * time.Second,
		Cap:         time.Duration(cfg.Outbox.RetryMaxSec) * time.Second,
		Factor:      cfg.Outbox.RetryFactor,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:         store,
		TicketRepo:    ticketRepo,
		OutboxRepo:    outboxRepo,
		MessageRepo:   messageRepo,
		NoteRepo:      noteRepo,
		Dispatcher:    dispatcher,
		Policy:        escalationPolicy,
		Logger:        logger,
		SupportChatID: cfg.Gateway.SupportChatID,
		WelcomeText:   cfg.Gateway.WelcomeMessage,
	})
	outboxService := service.NewOutboxService(outboxRepo, dispatcher, retryPolicy, logger)
	escalationService := service.NewEscalationService(ticketRepo, dispatcher, escalationPolicy, logger)

	notifications := service.NewNotificationService(outboxRepo, logger, cfg.Gateway.SupportChatID)
	notifications.RegisterHandlers(dispatcher)

	telegram := gateway.NewTelegram(cfg.Gateway, logger)

	deliveryWorker := worker.NewDeliveryWorker(
		outboxService, leaseRepo, telegram, logger,
		time.Duration(cfg.Outbox.IntervalSeconds)*time.Second, cfg.Outbox.BatchLimit,
	)
	escalationWorker := worker.NewEscalationWorker(
		escalationService, logger,
		time.Duration(cfg.Escalation.SweepSeconds)*time.Second,
	)
	archiveWorker := worker.NewArchiveWorker(
		ticketService, logger,
		time.Duration(cfg.Escalation.ArchiveAfterDays)*24*time.Hour,
	)

	go func() {
		if err := deliveryWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("delivery worker stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := escalationWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("escalation worker stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := archiveWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("archive worker stopped", zap.Error(err))
		}
	}()
	go func() {
		err := telegram.ReceiveLoop(ctx, func(ctx context.Context, msg gateway.InboundMessage) error {
			return ticketService.OnInboundMessage(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("receive loop stopped", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, time.Duration(cfg.App.RequestTimeoutSeconds)*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, version, store),
		Tickets: handlers.NewTicketsHandler(ticketService),
		Outbox:  handlers.NewOutboxHandler(outboxService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("support bot started",
		zap.String("addr", cfg.App.Addr()),
		zap.Int64("support_chat_id", cfg.Gateway.SupportChatID),
	)

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
