package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countpress/internal/config"
)

func freshConfig(t *testing.T) *config.Config {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)
	return config.GetConfig()
}

func TestDefaults(t *testing.T) {
	t.Setenv("COUNTPRESS_ENV", "test")
	cfg := freshConfig(t)

	assert.Equal(t, "countpress", cfg.AppName)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 30, cfg.DoubleClickThresholdSeconds)
	assert.False(t, cfg.KeepDailyMetrics)
	assert.False(t, cfg.KeepStagingRecords)
	assert.Equal(t, "@every 1h", cfg.LoaderSchedule)
	assert.Equal(t, "0 4 2 * *", cfg.MonthlySchedule)
	assert.Equal(t, 30, cfg.StagingRetentionDays)

	// Test environment pins the pool to a single connection.
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Equal(t, 1, cfg.GetMaxIdleConns())
}

func TestUsageLogDirectories(t *testing.T) {
	t.Setenv("COUNTPRESS_ENV", "test")
	t.Setenv("COUNTPRESS_USAGE_LOGS_DIR", "/var/lib/countpress/usage")
	cfg := freshConfig(t)

	assert.Equal(t, filepath.Join("/var/lib/countpress/usage", "stage"), cfg.StageDir())
	assert.Equal(t, filepath.Join("/var/lib/countpress/usage", "processing"), cfg.ProcessingDir())
	assert.Equal(t, filepath.Join("/var/lib/countpress/usage", "archive"), cfg.ArchiveDir())
	assert.Equal(t, filepath.Join("/var/lib/countpress/usage", "reject"), cfg.RejectDir())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COUNTPRESS_ENV", "test")
	t.Setenv("COUNTPRESS_DOUBLE_CLICK_THRESHOLD_SECONDS", "10")
	t.Setenv("COUNTPRESS_KEEP_DAILY_METRICS", "true")
	t.Setenv("COUNTPRESS_LOADER_SCHEDULE", "@every 15m")
	cfg := freshConfig(t)

	assert.Equal(t, 10, cfg.DoubleClickThresholdSeconds)
	assert.True(t, cfg.KeepDailyMetrics)
	assert.Equal(t, "@every 15m", cfg.LoaderSchedule)
}

func TestDatabasePathDerivedFromEnvironment(t *testing.T) {
	t.Setenv("COUNTPRESS_ENV", "test")
	t.Setenv("COUNTPRESS_STORAGE_PATH", "storage")
	cfg := freshConfig(t)

	require.Equal(t, filepath.Join("storage", "countpress-test.db"), cfg.GetDatabasePath())
	assert.Equal(t, cfg.GetDatabasePath(), cfg.DatabaseDSN())
}
