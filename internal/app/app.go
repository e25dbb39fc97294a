// Package app wires the results API server: run store, detector and HTTP
// controller, with signal-driven shutdown.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/gnsschange/internal/api"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/internal/store"
	"github.com/chrissnell/gnsschange/pkg/config"
)

// DefaultStorePath is used when the configuration names no run store
const DefaultStorePath = "gnsschange.db"

// App represents the server application
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.Config, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storePath := a.cfg.Output.Store
	if storePath == "" {
		storePath = DefaultStorePath
	}
	runs, err := store.Open(ctx, storePath, a.logger.Named("store"))
	if err != nil {
		return err
	}
	defer runs.Close()

	det, err := detector.New(a.cfg.Detector, a.logger.Named("detector"))
	if err != nil {
		return err
	}

	ctrl, err := api.NewController(ctx, &wg, a.cfg, runs, det, a.logger.Named("api"))
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
