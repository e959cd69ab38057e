package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/miniapp_gateway/config"
	"github.com/Fi44er/miniapp_gateway/db"
	"github.com/Fi44er/miniapp_gateway/internal/api"
	"github.com/Fi44er/miniapp_gateway/internal/bot"
	"github.com/Fi44er/miniapp_gateway/internal/cache"
	"github.com/Fi44er/miniapp_gateway/internal/instagram"
	"github.com/Fi44er/miniapp_gateway/internal/repository"
	"github.com/Fi44er/miniapp_gateway/internal/scheduler"
	"github.com/Fi44er/miniapp_gateway/internal/service"
	"github.com/Fi44er/miniapp_gateway/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}
	logger = utils.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	database, err := db.ConnectDb(cfg.DBDriver, cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, cfg.DBAutoMigrate, logger); err != nil {
		logger.Fatal(err)
	}

	adminIDs, err := cfg.AdminIDs()
	if err != nil {
		logger.Fatal("Invalid ADMIN_CHAT_IDS: ", err)
	}

	var sender bot.Sender
	if cfg.TelegramBotToken != "" {
		telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Fatal("Failed to create bot API: ", err)
		}
		logger.Infof("Authorized on account %s", telegramBot.Self.UserName)
		sender = telegramBot
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, notifications will only be logged")
	}
	notifier := bot.NewNotifier(sender, adminIDs, logger)

	repo := repository.NewRepository(database, logger)

	var fastSessions cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logger.Fatal("Failed to configure redis: ", err)
		}
		defer redisStore.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			logger.Warnf("Redis is not reachable, sessions will be served from the database: %v", err)
		}
		cancel()
		fastSessions = redisStore
	}
	sessions := cache.NewSessionCache(fastSessions, repo, logger)

	igClient := instagram.NewClient(cfg.InstagramGraphURL, cfg.InstagramRefreshURL, nil)
	poller := instagram.NewPoller(igClient, cfg.PollMaxAttempts, cfg.PollDelay)

	svc := service.NewService(repo, notifier, igClient, poller, service.Options{
		OrderPrefix:         cfg.OrderPrefix,
		WebhookSecret:       cfg.WebhookSecret,
		ReferralPercent:     cfg.ReferralPercent,
		TokenRefreshHorizon: cfg.TokenRefreshHorizon,
	}, logger)
	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is not set, payment signatures will not be verified")
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerSpec != "" {
		sched, err = scheduler.New(cfg.SchedulerSpec, svc, 10*time.Minute, logger)
		if err != nil {
			logger.Fatal(err)
		}
		sched.Start()
	}

	handler := api.NewHandler(svc, svc, sessions, notifier, api.AuthConfig{
		BotToken:       cfg.TelegramBotToken,
		InitDataMaxAge: cfg.InitDataMaxAge,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Infof("Server starting on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown: %v", err)
	}
	if sched != nil {
		sched.Stop(ctx)
	}
	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
}
