// Command identityd runs the identity service. It exchanges provider
// tokens for session cookies and serves activation tokens.
//
// Configuration comes from an optional file named by IDENTITY_CONFIG_FILE
// and from IDENTITY_* environment variables:
//
//	IDENTITY_SESSION_SECRET=... IDENTITY_POSTGRES_PASSWORD=... identityd
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/stricklysoft-identity/internal/app"
	"github.com/StricklySoft/stricklysoft-identity/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := app.DefaultConfig()
	if err := config.New().WithFile(os.Getenv("IDENTITY_CONFIG_FILE")).Load(cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize app", "error", err)
		return 1
	}

	// Shutdown gets a fresh context; the HTTP server bounds it with its
	// own shutdown timeout.
	defer func() {
		if err := application.Shutdown(context.Background()); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	if err := application.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	logger.Info("identityd started", "addr", application.Addr(), "version", app.Version)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-application.Errors():
		logger.Error("http server failed", "error", err)
		return 1
	}
	return 0
}
