package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"countpress/internal/config"
	"countpress/internal/loader"
)

// LoaderJob drains the stage directory: each waiting file is claimed,
// processed and then archived, returned for retry or rejected.
type LoaderJob struct {
	cfg    *config.Config
	logger *slog.Logger
	loader *loader.Loader
}

func NewLoaderJob(cfg *config.Config, logger *slog.Logger, l *loader.Loader) *LoaderJob {
	return &LoaderJob{
		cfg:    cfg,
		logger: logger,
		loader: l,
	}
}

// Run processes every file currently waiting in the stage directory.
// A failing file does not stop the rest of the pass.
func (j *LoaderJob) Run() error {
	if err := loader.EnsureDirs(j.cfg); err != nil {
		return err
	}
	if err := j.recoverOrphans(); err != nil {
		return err
	}

	files, err := loader.StagedFiles(j.cfg)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		j.logger.Debug("No staged usage log files")
		return nil
	}

	var failures int
	for _, path := range files {
		if err := j.processOne(path); err != nil {
			j.logger.Error("Failed to process staged file",
				slog.String("file", path),
				slog.Any("error", err))
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("jobs: %d of %d staged files failed", failures, len(files))
	}
	return nil
}

func (j *LoaderJob) processOne(path string) error {
	claimed, err := loader.MoveToProcessing(j.cfg, path)
	if err != nil {
		return err
	}

	result, err := j.loader.ProcessFile(claimed)
	switch result {
	case loader.Success:
		return loader.Archive(j.cfg, claimed)
	case loader.ReturnToStaging:
		j.logger.Warn("Returning file to stage for retry",
			slog.String("file", claimed),
			slog.Any("error", err))
		return loader.ReturnToStage(j.cfg, claimed)
	default:
		j.logger.Error("Rejecting structurally invalid file",
			slog.String("file", claimed),
			slog.Any("error", err))
		return loader.Reject(j.cfg, claimed)
	}
}

// recoverOrphans returns files stranded in the processing directory by
// an interrupted run. Re-processing is safe: batches are idempotent per
// load id.
func (j *LoaderJob) recoverOrphans() error {
	entries, err := os.ReadDir(j.cfg.ProcessingDir())
	if err != nil {
		return fmt.Errorf("jobs: failed to read processing directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		orphan := filepath.Join(j.cfg.ProcessingDir(), e.Name())
		j.logger.Warn("Recovering orphaned processing file", slog.String("file", orphan))
		if err := loader.ReturnToStage(j.cfg, orphan); err != nil {
			return err
		}
	}
	return nil
}
