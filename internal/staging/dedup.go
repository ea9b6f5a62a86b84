package staging

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// RemoveDoubleClicks deletes rapid repeat requests from the total records
// of a batch, per the COUNTER double-click rule: when two rows share
// (ip, user agent, canonical url) and the later line follows the earlier
// one by more than zero and less than threshold seconds, the later row is
// removed. The earliest click of a burst always survives.
//
// Precondition: log lines are time-ordered within the file, so a higher
// line number never carries an earlier timestamp.
func (s *Store) RemoveDoubleClicks(loadID string, thresholdSeconds int) error {
	delta := s.dialect.SecondsBetween("earlier.date", "later.date")
	query := fmt.Sprintf(`
		DELETE FROM usage_total_records WHERE id IN (
			SELECT later.id
			FROM usage_total_records AS later
			JOIN usage_total_records AS earlier
				ON earlier.load_id = later.load_id
				AND earlier.ip = later.ip
				AND earlier.user_agent = later.user_agent
				AND earlier.canonical_url = later.canonical_url
				AND earlier.line_number < later.line_number
			WHERE later.load_id = ?
				AND %s > 0
				AND %s < ?
		)`, delta, delta)

	return sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		result := tx.Exec(query, loadID, thresholdSeconds)
		if result.Error != nil {
			return fmt.Errorf("failed to remove double clicks: %w", result.Error)
		}
		s.logger.Info("Removed double clicks",
			slog.String("load_id", loadID),
			slog.Int("threshold_seconds", thresholdSeconds),
			slog.Int64("removed", result.RowsAffected))
		return nil
	})
}

// CollapseUniqueInvestigations keeps one unique-investigation row per
// visitor, submission and calendar day; all later rows of a cluster are
// deleted. An abstract view and a file download of the same submission
// count as one unique investigation.
func (s *Store) CollapseUniqueInvestigations(loadID string) error {
	return s.collapseUnique("usage_unique_investigations", loadID)
}

// CollapseUniqueRequests keeps one unique-request row per visitor,
// submission and calendar day. Downloads of different files of one
// submission count as one unique request.
func (s *Store) CollapseUniqueRequests(loadID string) error {
	return s.collapseUnique("usage_unique_requests", loadID)
}

// collapseUnique clusters on (ip, user agent, context, submission) per
// calendar day. The unique counters are submission-grained, so which
// page or file of the submission a line hit does not split a cluster.
func (s *Store) collapseUnique(table, loadID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id IN (
			SELECT later.id
			FROM %s AS later
			JOIN %s AS earlier
				ON earlier.load_id = later.load_id
				AND earlier.ip = later.ip
				AND earlier.user_agent = later.user_agent
				AND earlier.context_id = later.context_id
				AND %s
				AND %s = %s
				AND earlier.line_number < later.line_number
			WHERE later.load_id = ?
		)`,
		table, table, table,
		s.dialect.NullSafeEq("earlier.submission_id", "later.submission_id"),
		s.dialect.DateOf("earlier.date"), s.dialect.DateOf("later.date"))

	return sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		result := tx.Exec(query, loadID)
		if result.Error != nil {
			return fmt.Errorf("failed to collapse unique clicks in %s: %w", table, result.Error)
		}
		s.logger.Info("Collapsed unique clicks",
			slog.String("table", table),
			slog.String("load_id", loadID),
			slog.Int64("removed", result.RowsAffected))
		return nil
	})
}
