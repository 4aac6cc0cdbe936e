package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/config"
	"github.com/hibiscus-tools/tr-hibiscus/internal/faker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadFakerConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("loginCode", cfg.LoginCode),
		zap.Int("pageSize", cfg.PageSize),
		zap.String("fixturePath", cfg.FixturePath),
		zap.Int("events", cfg.Events),
	)

	// Load fixture
	var fixture *faker.Fixture
	if cfg.FixturePath != "" {
		fixture, err = faker.LoadFixture(cfg.FixturePath)
		if err != nil {
			logger.Error("failed to load fixture", zap.Error(err))
			return 1
		}
		logger.Info("fixture loaded",
			zap.String("path", cfg.FixturePath),
			zap.Int("transactions", len(fixture.Transactions)),
			zap.Int("activityLog", len(fixture.ActivityLog)),
			zap.Int("details", len(fixture.Details)),
		)
	} else {
		fixture = faker.DefaultFixture(cfg.Events)
		logger.Info("fixture generated", zap.Int("transactions", len(fixture.Transactions)))
	}

	// Create server
	srv := faker.NewServer(fixture, faker.Options{
		LoginCode: cfg.LoginCode,
		PageSize:  cfg.PageSize,
	}, logger)

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
