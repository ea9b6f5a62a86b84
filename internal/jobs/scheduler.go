// Package jobs runs the background side of the pipeline: the scheduled
// usage loader, the monthly rollup and staging cleanup.
package jobs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"countpress/internal/config"
	"countpress/internal/database"
	"countpress/internal/loader"
	"countpress/internal/metrics"
	"countpress/internal/pkg/botdetect"
	"countpress/internal/staging"
)

// cleanupSchedule runs staging cleanup nightly, before the morning loads.
const cleanupSchedule = "30 3 * * *"

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	cron      *cron.Cron
	enabled   bool
	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	loaderJob  *LoaderJob
	monthlyJob *MonthlyJob
	cleanupJob *CleanupJob
}

// NewScheduler wires the pipeline components and registers the jobs on
// their configured cron schedules. Call Start to begin execution.
func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	cfg := config.GetConfig()

	store, err := staging.NewStore(dbManager.GetConnection(), logger)
	if err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	aggregator := metrics.NewAggregator(store, logger, cfg.KeepDailyMetrics)
	batchLoader := loader.New(cfg, logger, store, aggregator, botdetect.NewDetector())

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		cron:      cron.New(),
		enabled:   true,
	}
	s.loaderJob = NewLoaderJob(cfg, logger, batchLoader)
	s.monthlyJob = NewMonthlyJob(logger, aggregator)
	s.cleanupJob = NewCleanupJob(logger, store, cfg)

	jobs := []struct {
		name     string
		schedule string
		run      func() error
	}{
		{"usage_loader", cfg.LoaderSchedule, s.loaderJob.Run},
		{"monthly_rollup", cfg.MonthlySchedule, s.monthlyJob.Run},
		{"staging_cleanup", cleanupSchedule, s.cleanupJob.Run},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.schedule, func() {
			s.executeJobSafely(j.name, j.run)
		}); err != nil {
			return nil, fmt.Errorf("jobs: failed to schedule %s: %w", j.name, err)
		}
		logger.Info("Scheduled background job",
			slog.String("job", j.name),
			slog.String("schedule", j.schedule))
	}

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	if err := loader.EnsureDirs(s.cfg); err != nil {
		return err
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	// Run an initial load pass so a restart picks up waiting files
	// without waiting for the next tick.
	go s.executeJobSafely("usage_loader", s.loaderJob.Run)

	s.cron.Start()

	s.logger.Info("Background jobs started")
	return nil
}

// Stop halts all background jobs and waits for a running one to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunLoaderNow triggers one loader pass outside the schedule.
func (s *Scheduler) RunLoaderNow() error {
	if !s.enabled {
		return nil
	}
	return s.loaderJob.Run()
}
