package loader_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countpress/internal/config"
	"countpress/internal/eventlog"
	"countpress/internal/loader"
)

func newDirsConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{UsageLogsDir: t.TempDir()}
	require.NoError(t, loader.EnsureDirs(cfg))
	return cfg
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
}

func TestStagedFilesExcludesOpenEventLog(t *testing.T) {
	cfg := newDirsConfig(t)

	touch(t, filepath.Join(cfg.StageDir(), "usage_events_20240501.log"))
	touch(t, filepath.Join(cfg.StageDir(), "usage_events_20240430.log"))
	touch(t, filepath.Join(cfg.StageDir(), eventlog.FileName(time.Now())))

	files, err := loader.StagedFiles(cfg)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "usage_events_20240430.log", filepath.Base(files[0]))
	assert.Equal(t, "usage_events_20240501.log", filepath.Base(files[1]))
}

func TestFileLifecycleMoves(t *testing.T) {
	cfg := newDirsConfig(t)

	staged := filepath.Join(cfg.StageDir(), "batch.log")
	touch(t, staged)

	claimed, err := loader.MoveToProcessing(cfg, staged)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ProcessingDir(), "batch.log"), claimed)
	assert.NoFileExists(t, staged)

	require.NoError(t, loader.ReturnToStage(cfg, claimed))
	assert.FileExists(t, staged)

	claimed, err = loader.MoveToProcessing(cfg, staged)
	require.NoError(t, err)
	require.NoError(t, loader.Archive(cfg, claimed))
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir(), "batch.log"))

	rejected := filepath.Join(cfg.ProcessingDir(), "bad.log")
	touch(t, rejected)
	require.NoError(t, loader.Reject(cfg, rejected))
	assert.FileExists(t, filepath.Join(cfg.RejectDir(), "bad.log"))
}
