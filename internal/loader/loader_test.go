package loader_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"countpress/internal/config"
	"countpress/internal/loader"
	"countpress/internal/metrics"
	"countpress/internal/pkg/botdetect"
	"countpress/internal/staging"
	"countpress/internal/testsupport"
	"countpress/internal/usage"
)

func newTestLoader(t *testing.T, db *gorm.DB, keepStaging bool) (*loader.Loader, *gorm.DB) {
	t.Helper()

	cfg := &config.Config{
		UsageLogsDir:                t.TempDir(),
		DoubleClickThresholdSeconds: 30,
		KeepStagingRecords:          keepStaging,
	}
	logger := testsupport.GetLogger()
	store, err := staging.NewStore(db, logger)
	require.NoError(t, err)
	aggregator := metrics.NewAggregator(store, logger, true)
	return loader.New(cfg, logger, store, aggregator, botdetect.NewDetector()), db
}

func entryJSON(e usage.LogEntry) (string, error) {
	b, err := json.Marshal(&e)
	return string(b), err
}

func TestLoadID(t *testing.T) {
	assert.Equal(t, "usage_events_20240501.log", loader.LoadID("/var/lib/countpress/processing/usage_events_20240501.log"))
}

func TestProcessFileEndToEnd(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, false)

	bot := testsupport.AbstractEntry("2024-05-01 09:30:00", "visitor-bot")
	bot.UserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	missingFile := testsupport.DownloadEntry("2024-05-01 10:10:00", "visitor-c")
	missingFile.AssocID = 999

	path := testsupport.WriteUsageLog(t, t.TempDir(), "usage_events_20240501.log", []usage.LogEntry{
		testsupport.ContextEntry("2024-05-01 08:00:00", "visitor-a"),
		testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a"),
		bot,
		testsupport.DownloadEntry("2024-05-01 10:00:00", "visitor-a", 7),
		testsupport.DownloadEntry("2024-05-01 10:00:05", "visitor-a", 7),
		missingFile,
		testsupport.DownloadEntry("2024-05-01 11:00:00", "visitor-b", 9),
	})

	result, err := l.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, loader.Success, result)

	var row metrics.CounterSubmissionDaily
	require.NoError(t, db.First(&row).Error)
	// Bot and missing-reference lines never staged; the 5-second repeat
	// download was removed as a double click.
	assert.EqualValues(t, 3, row.MetricInvestigations)
	assert.EqualValues(t, 2, row.MetricRequests)
	assert.EqualValues(t, 2, row.MetricInvestigationsUnique)
	assert.EqualValues(t, 2, row.MetricRequestsUnique)

	var contextMetric metrics.ContextMetric
	require.NoError(t, db.First(&contextMetric).Error)
	assert.EqualValues(t, 1, contextMetric.Metric)

	// KeepStagingRecords=false: staging cleaned after aggregation.
	var stagingCount int64
	require.NoError(t, db.Model(&staging.TotalRecord{}).Count(&stagingCount).Error)
	assert.EqualValues(t, 0, stagingCount)
}

func TestProcessFileSkipsBlankAndCommentLines(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, true)

	entry := testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a")
	line, err := entryJSON(entry)
	require.NoError(t, err)

	path := testsupport.WriteRawUsageLog(t, t.TempDir(), "batch.log", []string{
		"# generated by countpress",
		"",
		line,
		"   ",
	})

	result, err := l.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, loader.Success, result)

	var count int64
	require.NoError(t, db.Model(&staging.TotalRecord{}).Where("load_id = ?", "batch.log").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Line numbers are file positions, not staged-row positions.
	var total staging.TotalRecord
	require.NoError(t, db.Where("load_id = ?", "batch.log").First(&total).Error)
	assert.Equal(t, 3, total.LineNumber)
}

func TestProcessFileMalformedJSONIsFatal(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, true)

	path := testsupport.WriteRawUsageLog(t, t.TempDir(), "broken.log", []string{
		`{"time": "2024-05-01 09:00:00", "ip": "a"`,
	})

	result, err := l.ProcessFile(path)
	require.Error(t, err)
	assert.Equal(t, loader.Fatal, result)
}

func TestProcessFileValidationFailureIsFatal(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, true)

	entry := testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a")
	entry.ContextID = 0
	line, err := entryJSON(entry)
	require.NoError(t, err)

	path := testsupport.WriteRawUsageLog(t, t.TempDir(), "invalid.log", []string{line})

	result, err := l.ProcessFile(path)
	require.Error(t, err)
	assert.Equal(t, loader.Fatal, result)
}

func TestProcessFileMissingFileIsFatal(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	l, _ := newTestLoader(t, db, true)

	result, err := l.ProcessFile("/nonexistent/usage.log")
	require.Error(t, err)
	assert.Equal(t, loader.Fatal, result)
}

func TestProcessFileStagingWriteFailureIsRetryable(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, false)

	path := testsupport.WriteUsageLog(t, t.TempDir(), "batch.log", []usage.LogEntry{
		testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a"),
	})

	// Simulate a transient database failure during the staging insert. A
	// valid file must not be rejected for it.
	require.NoError(t, db.Exec(`
		CREATE TRIGGER reject_total_inserts BEFORE INSERT ON usage_total_records
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END`).Error)

	result, err := l.ProcessFile(path)
	require.Error(t, err)
	assert.Equal(t, loader.ReturnToStaging, result)

	// Once the database recovers, the same file loads cleanly.
	require.NoError(t, db.Exec("DROP TRIGGER reject_total_inserts").Error)

	result, err = l.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, loader.Success, result)

	var row metrics.CounterSubmissionDaily
	require.NoError(t, db.First(&row).Error)
	assert.EqualValues(t, 1, row.MetricInvestigations)
}

func TestProcessFileRerunIsIdempotent(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedCatalog(t, db)
	l, _ := newTestLoader(t, db, true)

	path := testsupport.WriteUsageLog(t, t.TempDir(), "batch.log", []usage.LogEntry{
		testsupport.AbstractEntry("2024-05-01 09:00:00", "visitor-a"),
		testsupport.DownloadEntry("2024-05-01 10:00:00", "visitor-a", 7),
	})

	for i := 0; i < 2; i++ {
		result, err := l.ProcessFile(path)
		require.NoError(t, err)
		assert.Equal(t, loader.Success, result)
	}

	var stagingCount int64
	require.NoError(t, db.Model(&staging.TotalRecord{}).Where("load_id = ?", "batch.log").Count(&stagingCount).Error)
	assert.EqualValues(t, 2, stagingCount)

	var metricCount int64
	require.NoError(t, db.Model(&metrics.CounterSubmissionDaily{}).Count(&metricCount).Error)
	assert.EqualValues(t, 1, metricCount)
}
