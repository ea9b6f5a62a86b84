package eventlog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countpress/internal/config"
	"countpress/internal/eventlog"
	"countpress/internal/testsupport"
	"countpress/internal/usage"
)

func newTestRecorder(t *testing.T) (*eventlog.Recorder, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		UsageLogsDir: t.TempDir(),
		PrivateKey:   "test-salt",
	}
	recorder, err := eventlog.NewRecorder(cfg, testsupport.GetLogger())
	require.NoError(t, err)
	return recorder, cfg
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "usage_events_20240501.log", eventlog.FileName(ts))
}

func TestHashIP(t *testing.T) {
	h := eventlog.HashIP("203.0.113.7", "salt-a")
	assert.Len(t, h, 64)
	assert.NotContains(t, h, "203.0.113.7")
	assert.Equal(t, h, eventlog.HashIP("203.0.113.7", "salt-a"))
	assert.NotEqual(t, h, eventlog.HashIP("203.0.113.7", "salt-b"))
	assert.NotEqual(t, h, eventlog.HashIP("203.0.113.8", "salt-a"))
}

func TestRecordWritesValidLogLine(t *testing.T) {
	recorder, cfg := newTestRecorder(t)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, recorder.Record(eventlog.Event{
		Time:             ts,
		IP:               "203.0.113.7",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CanonicalURL:     "https://journal.example.org/article/download/42/3/100",
		ContextID:        1,
		SubmissionID:     42,
		RepresentationID: 3,
		AssocType:        usage.AssocTypeSubmissionFile,
		AssocID:          100,
		FileType:         usage.FileTypePDF,
		InstitutionIDs:   []int64{7},
	}))

	data, err := os.ReadFile(filepath.Join(cfg.StageDir(), "usage_events_20240501.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry usage.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.NoError(t, usage.Validate(&entry))

	assert.Equal(t, "2024-05-01 10:00:00", entry.Time)
	assert.Equal(t, eventlog.HashIP("203.0.113.7", "test-salt"), entry.IP)
	assert.EqualValues(t, 42, entry.SubmissionID)
	assert.Equal(t, usage.FileTypePDF, entry.FileType)
	assert.Equal(t, []int64{7}, entry.InstitutionIDs)
}

func TestRecordAppendsAndDefaultsInstitutions(t *testing.T) {
	recorder, cfg := newTestRecorder(t)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		require.NoError(t, recorder.Record(eventlog.Event{
			Time:         ts.Add(time.Duration(i) * time.Minute),
			IP:           "203.0.113.7",
			UserAgent:    "Mozilla/5.0",
			CanonicalURL: "https://journal.example.org/article/view/42",
			ContextID:    1,
			SubmissionID: 42,
			AssocType:    usage.AssocTypeSubmission,
			AssocID:      42,
		}))
	}

	data, err := os.ReadFile(filepath.Join(cfg.StageDir(), "usage_events_20240501.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	// A nil institution list is recorded as an empty array, which the
	// validator requires.
	assert.Contains(t, lines[0], `"institutionIds":[]`)

	var entry usage.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.NoError(t, usage.Validate(&entry))
	assert.Equal(t, "2024-05-01 10:01:00", entry.Time)
}

func TestRecordSplitsFilesByDay(t *testing.T) {
	recorder, cfg := newTestRecorder(t)

	for _, ts := range []time.Time{
		time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 1, 0, 0, time.UTC),
	} {
		require.NoError(t, recorder.Record(eventlog.Event{
			Time:         ts,
			IP:           "203.0.113.7",
			UserAgent:    "Mozilla/5.0",
			CanonicalURL: "https://journal.example.org/",
			ContextID:    1,
			AssocType:    usage.AssocTypeContext,
			AssocID:      1,
		}))
	}

	assert.FileExists(t, filepath.Join(cfg.StageDir(), "usage_events_20240501.log"))
	assert.FileExists(t, filepath.Join(cfg.StageDir(), "usage_events_20240502.log"))
}
