package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/config"
	"github.com/finboard/server/internal/db"
	httphandler "github.com/finboard/server/internal/http"
	"github.com/finboard/server/internal/logging"
	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/middleware"
	"github.com/finboard/server/internal/repo"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the API and metrics listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database, "up"); err != nil {
		return err
	}

	m := metrics.New()
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshSecret: cfg.JWT.RefreshSecret,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	svc, err := auth.NewService(auth.ServiceDeps{
		Users:    repo.NewUserRepo(database),
		Refresh:  repo.NewRefreshRepo(database),
		Resets:   repo.NewResetRepo(database),
		Tokens:   tokens,
		Hasher:   auth.NewPasswordHasher(cfg.BcryptCost),
		Throttle: auth.NewLoginThrottle(cfg.MaxLoginAttempts, cfg.LockoutWindow),
		Notifier: auth.NewLogNotifier(logger, !cfg.IsProduction()),
		Metrics:  m,
		Logger:   logger,
		ResetTTL: cfg.ResetTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}
	defer svc.Drain()

	loginLimiter := middleware.NewFailureLimiter(cfg.RateLimits.Login.Window, cfg.RateLimits.Login.Max)
	defer loginLimiter.Stop()

	router := httphandler.NewRouter(httphandler.Deps{
		Config:       cfg,
		Logger:       logger,
		Metrics:      m,
		Tokens:       tokens,
		Service:      svc,
		DB:           database,
		LoginLimiter: loginLimiter,
	})

	apiServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range map[string]*http.Server{"api": apiServer, "metrics": metricsServer} {
		g.Go(func() error {
			logger.Info("server starting", "server", name, "addr", srv.Addr, "env", cfg.Env)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			apiServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}

	logger.Info("server exited")
	return nil
}

