package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"spam-moderator/internal/app"
	"spam-moderator/internal/config"
	"spam-moderator/internal/server"
	"spam-moderator/internal/telegram_bot"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting spam moderator...")

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Режим работы можно менять правкой settings.yml без перезапуска
	go func() {
		if err := application.Modes.Watch(ctx); err != nil {
			logger.Warn("Settings watcher stopped", zap.Error(err))
		}
	}()

	// Run Telegram bot in a goroutine (if enabled)
	bot, err := telegram_bot.NewBot(cfg, application.Moderator, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(cfg, application.Moderator, logger)
	go func() {
		if err := srv.Run(); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Spam moderator is running",
		zap.String("port", cfg.Server.Port),
		zap.String("mode", string(application.Moderator.Mode())),
		zap.Bool("telegram", bot != nil))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
