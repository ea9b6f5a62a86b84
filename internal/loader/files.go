package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"countpress/internal/config"
	"countpress/internal/eventlog"
)

// EnsureDirs creates the usage log directory tree.
func EnsureDirs(cfg *config.Config) error {
	for _, dir := range []string{
		cfg.StageDir(),
		cfg.ProcessingDir(),
		cfg.ArchiveDir(),
		cfg.RejectDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("loader: failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// StagedFiles lists the files in the stage directory that are ready for
// processing, oldest name first. The current day's event log is still
// being appended to and is excluded.
func StagedFiles(cfg *config.Config) ([]string, error) {
	entries, err := os.ReadDir(cfg.StageDir())
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read stage directory: %w", err)
	}

	today := eventlog.FileName(time.Now())
	var files []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == today {
			continue
		}
		files = append(files, filepath.Join(cfg.StageDir(), e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// MoveToProcessing claims a staged file for processing and returns its
// new path.
func MoveToProcessing(cfg *config.Config, path string) (string, error) {
	dest := filepath.Join(cfg.ProcessingDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("loader: failed to claim %s: %w", path, err)
	}
	return dest, nil
}

// Archive moves a successfully processed file to the archive directory.
func Archive(cfg *config.Config, path string) error {
	dest := filepath.Join(cfg.ArchiveDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("loader: failed to archive %s: %w", path, err)
	}
	return nil
}

// ReturnToStage moves a file back to the stage directory for a later
// retry.
func ReturnToStage(cfg *config.Config, path string) error {
	dest := filepath.Join(cfg.StageDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("loader: failed to return %s to stage: %w", path, err)
	}
	return nil
}

// Reject moves a structurally broken file to the reject directory.
func Reject(cfg *config.Config, path string) error {
	dest := filepath.Join(cfg.RejectDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("loader: failed to reject %s: %w", path, err)
	}
	return nil
}
