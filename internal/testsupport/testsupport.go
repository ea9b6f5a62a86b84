// Package testsupport holds shared helpers for package tests: in-memory
// databases, catalog seeds and usage log builders.
package testsupport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"countpress/internal/catalog"
	"countpress/internal/database"
	"countpress/internal/usage"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with countpress's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all countpress models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the
// database by test name so multiple calls within the same test return
// the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CleanTables clears the given tables and resets their sequences.
func CleanTables(db *gorm.DB, tables []string) {
	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// SeedCatalog creates a context, a submission, a galley, a submission
// file and two institutions with fixed ids, enough for most pipeline
// tests. Ids: context 1, submission 42, galley 3, submission file 100,
// institutions 7 and 9.
func SeedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()

	require.NoError(t, db.Create(&catalog.Context{ID: 1, Path: "test-journal", Name: "Test Journal", Enabled: true}).Error)
	require.NoError(t, db.Create(&catalog.Submission{ID: 42, ContextID: 1, Title: "Test Article"}).Error)
	require.NoError(t, db.Create(&catalog.Galley{ID: 3, SubmissionID: 42, Label: "PDF"}).Error)
	require.NoError(t, db.Create(&catalog.SubmissionFile{ID: 100, SubmissionID: 42, GalleyID: 3, Name: "article.pdf"}).Error)
	require.NoError(t, db.Create(&catalog.Institution{ID: 7, ContextID: 1, Name: "University A"}).Error)
	require.NoError(t, db.Create(&catalog.Institution{ID: 9, ContextID: 1, Name: "University B"}).Error)
}

// AbstractEntry builds a submission landing page view.
func AbstractEntry(timestamp, ip string) usage.LogEntry {
	return usage.LogEntry{
		Time:           timestamp,
		IP:             ip,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CanonicalURL:   "https://journal.example.org/article/view/42",
		ContextID:      1,
		SubmissionID:   42,
		AssocType:      usage.AssocTypeSubmission,
		AssocID:        42,
		InstitutionIDs: []int64{},
	}
}

// DownloadEntry builds a galley file download.
func DownloadEntry(timestamp, ip string, institutionIDs ...int64) usage.LogEntry {
	if institutionIDs == nil {
		institutionIDs = []int64{}
	}
	return usage.LogEntry{
		Time:             timestamp,
		IP:               ip,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CanonicalURL:     "https://journal.example.org/article/download/42/3/100",
		ContextID:        1,
		SubmissionID:     42,
		RepresentationID: 3,
		AssocType:        usage.AssocTypeSubmissionFile,
		AssocID:          100,
		FileType:         usage.FileTypePDF,
		InstitutionIDs:   institutionIDs,
	}
}

// ContextEntry builds a journal index page view.
func ContextEntry(timestamp, ip string) usage.LogEntry {
	return usage.LogEntry{
		Time:           timestamp,
		IP:             ip,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CanonicalURL:   "https://journal.example.org/",
		ContextID:      1,
		AssocType:      usage.AssocTypeContext,
		AssocID:        1,
		InstitutionIDs: []int64{},
	}
}

// WriteUsageLog writes entries as a JSON-lines usage log file and
// returns its path. The file name becomes the load id.
func WriteUsageLog(t *testing.T, dir, name string, entries []usage.LogEntry) string {
	t.Helper()

	var b strings.Builder
	for i := range entries {
		line, err := json.Marshal(&entries[i])
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// WriteRawUsageLog writes pre-built lines verbatim, for malformed-input
// tests.
func WriteRawUsageLog(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
