package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/apexfest/checkin/internal/api"
	"github.com/apexfest/checkin/internal/config"
	"github.com/apexfest/checkin/internal/factory"
	"github.com/apexfest/checkin/internal/logging"
	"github.com/apexfest/checkin/internal/web"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkin server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may be set another way
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Create application factory
	app, err := factory.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	secureCookies := strings.HasPrefix(cfg.PublicBaseURL, "https://")

	// Create API router
	apiRouter := api.NewRouter(api.RouterConfig{
		Logger:             logger,
		Storage:            app.Storage,
		AuthService:        app.AuthService,
		DirectoryService:   app.DirectoryService,
		LedgerService:      app.LedgerService,
		LeaderboardService: app.LeaderboardService,
		Broadcaster:        app.Broadcaster,
		Metrics:            app.Metrics,
		PublicBaseURL:      cfg.PublicBaseURL,
		SecureCookies:      secureCookies,
	})

	// Create web router
	webRouter := web.NewRouter(web.RouterConfig{
		Logger:             logger,
		AuthService:        app.AuthService,
		LedgerService:      app.LedgerService,
		LeaderboardService: app.LeaderboardService,
	})

	server := api.NewServer(api.NewMux(apiRouter, webRouter), api.ServerConfigFrom(cfg), logger)

	go sweepSessions(ctx, app, logger)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.StorageType),
		slog.String("notify", cfg.NotifyType),
	)

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		// Open leaderboard streams would otherwise hold Shutdown until its timeout
		app.HubManager.CloseAll()
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// sweepSessions drops revoked sessions that have expired anyway
func sweepSessions(ctx context.Context, app *factory.App, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.AuthService.CleanExpiredSessions()
			logger.Debug("expired sessions swept")
		}
	}
}
