package jobs

import (
	"log/slog"
	"time"

	"countpress/internal/config"
	"countpress/internal/staging"
)

// CleanupJob removes staging rows kept past the retention window. These
// only accumulate when KeepStagingRecords is enabled; the metrics they
// produced are durable, so dropping them loses nothing.
type CleanupJob struct {
	logger *slog.Logger
	store  *staging.Store
	cfg    *config.Config
}

func NewCleanupJob(logger *slog.Logger, store *staging.Store, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		logger: logger,
		store:  store,
		cfg:    cfg,
	}
}

func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.StagingRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Staging retention disabled")
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting staging cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	deleted, err := j.store.DeleteOlderThan(cutoff)
	if err != nil {
		return err
	}

	if deleted == 0 {
		j.logger.Debug("No staging rows past retention")
		return nil
	}
	j.logger.Info("Cleaned up staging rows",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", retentionDays))
	return nil
}
