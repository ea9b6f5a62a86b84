package staging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"countpress/internal/catalog"
	"countpress/internal/storage"
	"countpress/internal/usage"
)

// Store is the temporary record store for one or more load batches. Rows
// are namespaced by load id, so a crashed batch can be purged and retried
// without touching other batches.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	catalog *catalog.Catalog
	dialect storage.Dialect
}

// NewStore creates a staging store over the given connection.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	dialect, err := storage.ForDB(db)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:      db,
		logger:  logger,
		catalog: catalog.New(db),
		dialect: dialect,
	}, nil
}

// DB exposes the underlying connection for the aggregation engine, which
// reads the staging tables directly.
func (s *Store) DB() *gorm.DB { return s.db }

// Dialect exposes the SQL dialect in use.
func (s *Store) Dialect() storage.Dialect { return s.dialect }

// Insert stages one validated log entry under the given load id. A total
// record is always written; a unique-investigation record only when the
// entry touches a submission; a unique-request record only for file
// downloads; one institution row per institution id.
func (s *Store) Insert(tx *gorm.DB, entry *usage.LogEntry, lineNumber int, loadID string) error {
	ts, err := entry.Timestamp()
	if err != nil {
		return fmt.Errorf("staging insert: %w", err)
	}

	var submissionID, representationID *int64
	if entry.SubmissionID != 0 {
		v := entry.SubmissionID
		submissionID = &v
	}
	if entry.RepresentationID != 0 {
		v := entry.RepresentationID
		representationID = &v
	}
	var fileType *usage.FileType
	if entry.FileType != 0 {
		v := entry.FileType
		fileType = &v
	}

	userAgent := entry.UserAgent
	if len(userAgent) > 255 {
		userAgent = userAgent[:255]
	}

	total := &TotalRecord{
		LoadID:           loadID,
		LineNumber:       lineNumber,
		Date:             ts,
		IP:               entry.IP,
		UserAgent:        userAgent,
		CanonicalURL:     entry.CanonicalURL,
		ContextID:        entry.ContextID,
		SubmissionID:     submissionID,
		RepresentationID: representationID,
		AssocType:        entry.AssocType,
		AssocID:          entry.AssocID,
		FileType:         fileType,
		Country:          entry.Country,
		Region:           entry.Region,
		City:             entry.City,
	}
	if err := tx.Create(total).Error; err != nil {
		return fmt.Errorf("failed to stage total record: %w", err)
	}

	if submissionID != nil {
		investigation := &UniqueInvestigationRecord{
			LoadID:           loadID,
			LineNumber:       lineNumber,
			Date:             ts,
			IP:               entry.IP,
			UserAgent:        userAgent,
			ContextID:        entry.ContextID,
			SubmissionID:     submissionID,
			RepresentationID: representationID,
			AssocType:        entry.AssocType,
			AssocID:          entry.AssocID,
			FileType:         fileType,
			Country:          entry.Country,
			Region:           entry.Region,
			City:             entry.City,
		}
		if err := tx.Create(investigation).Error; err != nil {
			return fmt.Errorf("failed to stage unique investigation record: %w", err)
		}

		if entry.AssocType == usage.AssocTypeSubmissionFile {
			request := &UniqueRequestRecord{
				LoadID:           loadID,
				LineNumber:       lineNumber,
				Date:             ts,
				IP:               entry.IP,
				UserAgent:        userAgent,
				ContextID:        entry.ContextID,
				SubmissionID:     submissionID,
				RepresentationID: representationID,
				AssocType:        entry.AssocType,
				AssocID:          entry.AssocID,
				FileType:         fileType,
				Country:          entry.Country,
				Region:           entry.Region,
				City:             entry.City,
			}
			if err := tx.Create(request).Error; err != nil {
				return fmt.Errorf("failed to stage unique request record: %w", err)
			}
		}
	}

	for _, institutionID := range entry.InstitutionIDs {
		row := &InstitutionRecord{
			LoadID:        loadID,
			LineNumber:    lineNumber,
			InstitutionID: institutionID,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to stage institution record: %w", err)
		}
	}

	return nil
}

// DeleteByLoadID purges all staging rows for a batch. Used both for
// idempotent retry before a load and for cleanup after aggregation.
func (s *Store) DeleteByLoadID(loadID string) error {
	return sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		for _, model := range []any{
			&TotalRecord{},
			&UniqueInvestigationRecord{},
			&UniqueRequestRecord{},
			&InstitutionRecord{},
		} {
			if err := tx.Where("load_id = ?", loadID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to purge staging rows: %w", err)
			}
		}
		return nil
	})
}

// DeleteOlderThan removes staging rows whose event date is before the
// cutoff, plus institution rows whose batch no longer has total records.
// It returns the number of rows removed.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	var total int64
	err := sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		for _, model := range []any{
			&TotalRecord{},
			&UniqueInvestigationRecord{},
			&UniqueRequestRecord{},
		} {
			result := tx.Where("date < ?", cutoff).Delete(model)
			if result.Error != nil {
				return fmt.Errorf("failed to delete expired staging rows: %w", result.Error)
			}
			total += result.RowsAffected
		}

		// Institution rows carry no timestamp of their own.
		result := tx.Exec(`
			DELETE FROM usage_institution_records
			WHERE load_id NOT IN (SELECT DISTINCT load_id FROM usage_total_records)`)
		if result.Error != nil {
			return fmt.Errorf("failed to delete orphaned institution rows: %w", result.Error)
		}
		total += result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// CheckForeignKeys verifies that every entity the entry references exists
// in the catalog. It returns one description per missing reference; a
// non-empty result excludes the entry from staging but does not abort the
// batch.
func (s *Store) CheckForeignKeys(entry *usage.LogEntry) ([]string, error) {
	var missing []string

	ok, err := s.catalog.ContextExists(entry.ContextID)
	if err != nil {
		return nil, err
	}
	if !ok {
		missing = append(missing, fmt.Sprintf("context_id: %d", entry.ContextID))
	}

	if entry.SubmissionID != 0 {
		ok, err := s.catalog.SubmissionExists(entry.SubmissionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("submission_id: %d", entry.SubmissionID))
		}
	}

	if entry.RepresentationID != 0 {
		ok, err := s.catalog.GalleyExists(entry.RepresentationID)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("galley_id: %d", entry.RepresentationID))
		}
	}

	if entry.AssocType == usage.AssocTypeSubmissionFile || entry.AssocType == usage.AssocTypeSubmissionFileOther {
		ok, err := s.catalog.SubmissionFileExists(entry.AssocID)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("submission_file_id: %d", entry.AssocID))
		}
	}

	for _, institutionID := range entry.InstitutionIDs {
		ok, err := s.catalog.InstitutionExists(institutionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("institution_id: %d", institutionID))
		}
	}

	return missing, nil
}
