package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medication-reminder/internal/jobs"
	"medication-reminder/internal/platform/config"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewFromEnv().Error("invalid config", map[string]any{"error": err})
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
		App:    cfg.App.Name,
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", map[string]any{"error": err})
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := router.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	opts, err := router.OptionsFromConfig(cfg, log, stores)
	if err != nil {
		return err
	}
	if opts.AuthVerifier == nil {
		log.Warn("auth verifier not configured, dev mode (X-Debug-User-ID)", nil)
	}
	app := router.Build(opts)

	runner := jobs.New(jobs.Options{
		Repo:      app.Repo,
		Engine:    app.Engine,
		Logger:    log,
		Grace:     cfg.Jobs.MissedGrace,
		BatchSize: cfg.Jobs.BatchSize,
	})
	if cfg.Jobs.Enabled {
		if err := runner.Start(cfg.Jobs.ReminderSpec, cfg.Jobs.MissedSpec); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", map[string]any{"error": err})
	}
	select {
	case <-runner.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("jobs still running at shutdown", nil)
	}

	// dispatches async pendientes
	done := make(chan struct{})
	go func() {
		app.Dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("pending notifications dropped at shutdown", nil)
	}
	return nil
}
