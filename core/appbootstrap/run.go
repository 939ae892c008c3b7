package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dtp-ingest/config"
	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"
)

const shutdownTimeout = 10 * time.Second

// Run wires the service together and blocks until SIGINT/SIGTERM.
func Run(cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}

	comp := composeRuntime(cfg, db, logger)
	if err := comp.scheduler.StartWithContext(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: comp.server.Handler()}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("admin api listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("admin api: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := comp.scheduler.StopWithContext(shutdownCtx); err != nil {
		logger.Errorf("scheduler stop: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("admin api shutdown: %v", err)
	}
	return nil
}
