package metrics

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"countpress/internal/staging"
	"countpress/internal/storage"
	"countpress/internal/usage"
)

// counterCols are the four COUNTER counters, in table column order.
var counterCols = []string{
	"metric_investigations",
	"metric_investigations_unique",
	"metric_requests",
	"metric_requests_unique",
}

// Aggregator condenses deduplicated staging rows into the durable daily
// metric tables and rolls daily rows up into monthly ones.
type Aggregator struct {
	db        *gorm.DB
	logger    *slog.Logger
	dialect   storage.Dialect
	keepDaily bool
}

// NewAggregator creates an aggregator over the staging store's connection.
// When keepDaily is false, the monthly rollup deletes the daily source
// rows it consumed.
func NewAggregator(store *staging.Store, logger *slog.Logger, keepDaily bool) *Aggregator {
	return &Aggregator{
		db:        store.DB(),
		logger:    logger,
		dialect:   store.Dialect(),
		keepDaily: keepDaily,
	}
}

// AggregateDaily replaces the daily metric rows of one load batch with
// fresh aggregates from staging. Each table is purged by load id first,
// so re-running a batch never double-counts.
func (a *Aggregator) AggregateDaily(loadID string) error {
	return sqlite.PerformWrite(a.logger, a.db, func(tx *gorm.DB) error {
		if err := a.loadContextMetrics(tx, loadID); err != nil {
			return err
		}
		if err := a.loadSubmissionMetrics(tx, loadID); err != nil {
			return err
		}
		if err := a.loadCounterSubmissionDaily(tx, loadID); err != nil {
			return err
		}
		if err := a.loadSubmissionGeoDaily(tx, loadID); err != nil {
			return err
		}
		if err := a.loadCounterSubmissionInstitutionDaily(tx, loadID); err != nil {
			return err
		}
		a.logger.Info("Aggregated daily metrics", slog.String("load_id", loadID))
		return nil
	})
}

func (a *Aggregator) loadContextMetrics(tx *gorm.DB, loadID string) error {
	if err := tx.Where("load_id = ?", loadID).Delete(&ContextMetric{}).Error; err != nil {
		return fmt.Errorf("failed to purge context metrics: %w", err)
	}

	day := a.dialect.DateOf("date")
	query := fmt.Sprintf(`
		INSERT INTO metrics_context (load_id, context_id, date, metric)
		SELECT load_id, context_id, %s, COUNT(*)
		FROM usage_total_records
		WHERE load_id = ? AND assoc_type = ?
		GROUP BY load_id, context_id, %s`, day, day)

	if err := tx.Exec(query, loadID, usage.AssocTypeContext).Error; err != nil {
		return fmt.Errorf("failed to aggregate context metrics: %w", err)
	}
	return nil
}

func (a *Aggregator) loadSubmissionMetrics(tx *gorm.DB, loadID string) error {
	if err := tx.Where("load_id = ?", loadID).Delete(&SubmissionMetric{}).Error; err != nil {
		return fmt.Errorf("failed to purge submission metrics: %w", err)
	}

	day := a.dialect.DateOf("date")

	// Abstract and landing page views carry no file dimensions.
	abstracts := fmt.Sprintf(`
		INSERT INTO metrics_submission (load_id, context_id, submission_id, assoc_type, date, metric)
		SELECT load_id, context_id, submission_id, assoc_type, %s, COUNT(*)
		FROM usage_total_records
		WHERE load_id = ? AND assoc_type = ?
		GROUP BY load_id, context_id, submission_id, %s`, day, day)
	if err := tx.Exec(abstracts, loadID, usage.AssocTypeSubmission).Error; err != nil {
		return fmt.Errorf("failed to aggregate submission view metrics: %w", err)
	}

	downloads := fmt.Sprintf(`
		INSERT INTO metrics_submission
			(load_id, context_id, submission_id, representation_id, submission_file_id, file_type, assoc_type, date, metric)
		SELECT load_id, context_id, submission_id, representation_id, assoc_id, file_type, assoc_type, %s, COUNT(*)
		FROM usage_total_records
		WHERE load_id = ? AND assoc_type IN (?, ?)
		GROUP BY load_id, context_id, submission_id, representation_id, assoc_id, file_type, assoc_type, %s`, day, day)
	if err := tx.Exec(downloads, loadID, usage.AssocTypeSubmissionFile, usage.AssocTypeSubmissionFileOther).Error; err != nil {
		return fmt.Errorf("failed to aggregate submission file metrics: %w", err)
	}
	return nil
}

// counterUpsert runs one aggregation pass into a COUNTER table. Each pass
// fills exactly one counter column; the conflict clause updates only that
// column, so passes never clobber each other's results.
func (a *Aggregator) counterUpsert(tx *gorm.DB, table string, keyCols, selectCols []string, from, where, counter string, args ...any) error {
	values := make([]string, len(counterCols))
	for i, col := range counterCols {
		if col == counter {
			values[i] = "COUNT(*)"
		} else {
			values[i] = "0"
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		SELECT %s, %s
		FROM %s
		WHERE %s
		GROUP BY %s
		%s`,
		table,
		strings.Join(keyCols, ", "), strings.Join(counterCols, ", "),
		strings.Join(selectCols, ", "), strings.Join(values, ", "),
		from,
		where,
		strings.Join(selectCols, ", "),
		a.dialect.UpsertSet(keyCols, counter))

	if err := tx.Exec(query, args...).Error; err != nil {
		return fmt.Errorf("failed to aggregate %s into %s: %w", counter, table, err)
	}
	return nil
}

func (a *Aggregator) loadCounterSubmissionDaily(tx *gorm.DB, loadID string) error {
	if err := tx.Where("load_id = ?", loadID).Delete(&CounterSubmissionDaily{}).Error; err != nil {
		return fmt.Errorf("failed to purge counter submission daily metrics: %w", err)
	}

	const table = "metrics_counter_submission_daily"
	keyCols := []string{"load_id", "context_id", "submission_id", "date"}
	selectCols := []string{"load_id", "context_id", "submission_id", a.dialect.DateOf("date")}

	passes := []struct {
		from    string
		where   string
		counter string
		args    []any
	}{
		{"usage_total_records", "load_id = ? AND submission_id IS NOT NULL",
			"metric_investigations", []any{loadID}},
		{"usage_total_records", "load_id = ? AND assoc_type = ?",
			"metric_requests", []any{loadID, usage.AssocTypeSubmissionFile}},
		{"usage_unique_investigations", "load_id = ?",
			"metric_investigations_unique", []any{loadID}},
		{"usage_unique_requests", "load_id = ?",
			"metric_requests_unique", []any{loadID}},
	}
	for _, p := range passes {
		if err := a.counterUpsert(tx, table, keyCols, selectCols, p.from, p.where, p.counter, p.args...); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) loadSubmissionGeoDaily(tx *gorm.DB, loadID string) error {
	if err := tx.Where("load_id = ?", loadID).Delete(&SubmissionGeoDaily{}).Error; err != nil {
		return fmt.Errorf("failed to purge submission geo daily metrics: %w", err)
	}

	const table = "metrics_submission_geo_daily"
	keyCols := []string{"load_id", "context_id", "submission_id", "country", "region", "city", "date"}
	selectCols := []string{"load_id", "context_id", "submission_id", "country", "region", "city", a.dialect.DateOf("date")}

	passes := []struct {
		from    string
		where   string
		counter string
		args    []any
	}{
		{"usage_total_records", "load_id = ? AND submission_id IS NOT NULL",
			"metric_investigations", []any{loadID}},
		{"usage_total_records", "load_id = ? AND assoc_type = ?",
			"metric_requests", []any{loadID, usage.AssocTypeSubmissionFile}},
		{"usage_unique_investigations", "load_id = ?",
			"metric_investigations_unique", []any{loadID}},
		{"usage_unique_requests", "load_id = ?",
			"metric_requests_unique", []any{loadID}},
	}
	for _, p := range passes {
		if err := a.counterUpsert(tx, table, keyCols, selectCols, p.from, p.where, p.counter, p.args...); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) loadCounterSubmissionInstitutionDaily(tx *gorm.DB, loadID string) error {
	if err := tx.Where("load_id = ?", loadID).Delete(&CounterSubmissionInstitutionDaily{}).Error; err != nil {
		return fmt.Errorf("failed to purge counter submission institution daily metrics: %w", err)
	}

	const table = "metrics_counter_submission_institution_daily"
	keyCols := []string{"load_id", "context_id", "submission_id", "institution_id", "date"}

	selectFor := func(alias string) []string {
		return []string{
			alias + ".load_id",
			alias + ".context_id",
			alias + ".submission_id",
			"inst.institution_id",
			a.dialect.DateOf(alias + ".date"),
		}
	}
	joinFor := func(source, alias string) string {
		return fmt.Sprintf(`%s AS %s
			JOIN usage_institution_records AS inst
				ON inst.load_id = %s.load_id AND inst.line_number = %s.line_number`,
			source, alias, alias, alias)
	}

	passes := []struct {
		source  string
		where   string
		counter string
		args    []any
	}{
		{"usage_total_records", "rec.load_id = ? AND rec.submission_id IS NOT NULL",
			"metric_investigations", []any{loadID}},
		{"usage_total_records", "rec.load_id = ? AND rec.assoc_type = ?",
			"metric_requests", []any{loadID, usage.AssocTypeSubmissionFile}},
		{"usage_unique_investigations", "rec.load_id = ?",
			"metric_investigations_unique", []any{loadID}},
		{"usage_unique_requests", "rec.load_id = ?",
			"metric_requests_unique", []any{loadID}},
	}
	for _, p := range passes {
		if err := a.counterUpsert(tx, table, keyCols, selectFor("rec"), joinFor(p.source, "rec"), p.where, p.counter, p.args...); err != nil {
			return err
		}
	}
	return nil
}
