package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fullstack-poc/usersview/internal/config"
	"github.com/fullstack-poc/usersview/internal/handlers"
	"github.com/fullstack-poc/usersview/internal/logger"
	"github.com/fullstack-poc/usersview/internal/middleware"
	"github.com/fullstack-poc/usersview/internal/view"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

const maxRequestSize = 64 * 1024 // 64KB, the page only posts small forms

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting users page", zap.String("api_base_url", cfg.API.BaseURL))

	viewConfig := view.Config{BaseURL: cfg.API.BaseURL}
	sessions := handlers.NewSessions(func() *view.View {
		return view.New(viewConfig, logger.Logger)
	}, cfg.Session.TTL, logger.Logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		if err := sessions.Run(ctx); err != nil {
			logger.Logger.Fatal("Failed to start session sweeper", zap.Error(err))
		}
	}()

	pageHandler, err := handlers.NewPageHandler(sessions, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to parse page templates", zap.Error(err))
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(logger.Logger))
	r.Use(middleware.RecoveryMiddleware(logger.Logger))
	r.Use(httprate.LimitByIP(300, time.Minute))
	r.Use(middleware.RequestSizeLimitMiddleware(maxRequestSize))

	pageHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.WebPort),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.WebPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stop()
	<-sessionsDone

	logger.Logger.Info("Server exited")
}
