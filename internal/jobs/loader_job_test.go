package jobs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"countpress/internal/config"
	"countpress/internal/jobs"
	"countpress/internal/loader"
	"countpress/internal/metrics"
	"countpress/internal/pkg/botdetect"
	"countpress/internal/staging"
	"countpress/internal/testsupport"
	"countpress/internal/usage"
)

func newTestLoaderJob(t *testing.T, db *gorm.DB) (*jobs.LoaderJob, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		UsageLogsDir:                t.TempDir(),
		DoubleClickThresholdSeconds: 30,
	}
	logger := testsupport.GetLogger()
	store, err := staging.NewStore(db, logger)
	require.NoError(t, err)
	aggregator := metrics.NewAggregator(store, logger, true)
	batchLoader := loader.New(cfg, logger, store, aggregator, botdetect.NewDetector())
	return jobs.NewLoaderJob(cfg, logger, batchLoader), cfg
}

func TestLoaderJobArchivesAndRejects(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	job, cfg := newTestLoaderJob(t, db)
	require.NoError(t, loader.EnsureDirs(cfg))

	testsupport.WriteUsageLog(t, cfg.StageDir(), "usage_events_20240501.log", []usage.LogEntry{
		testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a"),
	})
	testsupport.WriteRawUsageLog(t, cfg.StageDir(), "usage_events_20240502.log", []string{
		"not json at all",
	})

	require.NoError(t, job.Run())

	assert.FileExists(t, filepath.Join(cfg.ArchiveDir(), "usage_events_20240501.log"))
	assert.FileExists(t, filepath.Join(cfg.RejectDir(), "usage_events_20240502.log"))

	entries, err := os.ReadDir(cfg.StageDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	var row metrics.CounterSubmissionDaily
	require.NoError(t, db.First(&row).Error)
	assert.EqualValues(t, 1, row.MetricInvestigations)
}

func TestLoaderJobRecoversOrphans(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	job, cfg := newTestLoaderJob(t, db)
	require.NoError(t, loader.EnsureDirs(cfg))

	// A crashed run left a claimed file behind.
	testsupport.WriteUsageLog(t, cfg.ProcessingDir(), "usage_events_20240501.log", []usage.LogEntry{
		testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a"),
	})

	require.NoError(t, job.Run())

	assert.FileExists(t, filepath.Join(cfg.ArchiveDir(), "usage_events_20240501.log"))
}

func TestLoaderJobEmptyStageIsNoOp(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	job, _ := newTestLoaderJob(t, db)
	require.NoError(t, job.Run())
}
