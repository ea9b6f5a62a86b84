// Package internal wires the pipeline components into one application.
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"countpress/internal/config"
	"countpress/internal/database"
	"countpress/internal/jobs"
	"countpress/internal/logging"
	"countpress/internal/pkg/geoip"
)

// Application bundles the long-lived components: configuration, logger,
// database manager and the job scheduler.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler, err := jobs.NewScheduler(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Scheduler: scheduler,
	}, nil
}

// StartAsync starts the background jobs and returns immediately.
func (a *Application) StartAsync() error {
	return a.Scheduler.Start()
}

// Shutdown stops the scheduler and closes the database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Logger.Warn("Shutdown timed out waiting for running job")
	}

	db := a.DBManager.GetConnection()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database for shutdown: %w", err)
	}
	return sqlDB.Close()
}
