package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/app"
	"github.com/sso312/QueryLens-sub002/internal/config"
	"github.com/sso312/QueryLens-sub002/internal/logging"
	"github.com/sso312/QueryLens-sub002/internal/transport/rest"
	"github.com/sso312/QueryLens-sub002/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUERYLENS_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("starting",
		zap.String("engineer_model", cfg.AI.Models.Engineer),
		zap.String("expert_model", cfg.AI.Models.Expert),
		zap.String("repair_model", cfg.AI.Models.Repair),
		zap.Float64("expert_threshold", cfg.Pipeline.ExpertThreshold),
		zap.Int("row_cap", cfg.Pipeline.RowCap),
		zap.Duration("db_timeout", cfg.Pipeline.DBTimeout),
		zap.Int("max_attempts", cfg.Pipeline.MaxAttempts))

	hub := ws.NewHub(logger)

	a, err := app.Build(ctx, cfg, hub, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	router := rest.NewRouter(&rest.Container{
		QueryService: a.QueryService,
		AuthService:  a.AuthService,
		AuditLog:     a.AuditLog,
		CostLedger:   a.CostLedger,
		WSHub:        hub,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// A request may spend its whole pipeline budget before writing.
		WriteTimeout: cfg.RequestTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Duration("request_timeout", cfg.RequestTimeout()),
			zap.Bool("auth", a.AuthService != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
