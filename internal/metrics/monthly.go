package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// MonthLayout is the format of the month key in the monthly tables.
const MonthLayout = "200601"

// ErrCurrentMonth is returned when a rollup targets the current or a
// future month. A running month is still accumulating daily rows, so
// rolling it up would freeze a partial result.
var ErrCurrentMonth = errors.New("metrics: month is still open for collection")

var monthPattern = regexp.MustCompile(`^\d{6}$`)

// PreviousMonth returns the month before the current one as YYYYMM, the
// default rollup target for the scheduled job.
func PreviousMonth() string {
	now := time.Now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(MonthLayout)
}

// monthlyRollup pairs a daily source table with its monthly target and
// the dimension columns both share.
type monthlyRollup struct {
	daily   string
	monthly string
	dims    []string
}

var monthlyRollups = []monthlyRollup{
	{
		daily:   "metrics_counter_submission_daily",
		monthly: "metrics_counter_submission_monthly",
		dims:    []string{"context_id", "submission_id"},
	},
	{
		daily:   "metrics_submission_geo_daily",
		monthly: "metrics_submission_geo_monthly",
		dims:    []string{"context_id", "submission_id", "country", "region", "city"},
	},
	{
		daily:   "metrics_counter_submission_institution_daily",
		monthly: "metrics_counter_submission_institution_monthly",
		dims:    []string{"context_id", "submission_id", "institution_id"},
	},
}

// AggregateMonthly rolls the daily COUNTER tables up into their monthly
// counterparts for one closed month (YYYYMM). The target month's monthly
// rows are replaced wholesale, so the rollup is idempotent. When the
// aggregator was built without keepDaily, the consumed daily rows are
// deleted afterwards.
func (a *Aggregator) AggregateMonthly(month string) error {
	if !monthPattern.MatchString(month) {
		return fmt.Errorf("metrics: invalid month %q, want YYYYMM", month)
	}
	parsed, err := time.Parse(MonthLayout, month)
	if err != nil {
		return fmt.Errorf("metrics: invalid month %q: %w", month, err)
	}
	now := time.Now()
	currentFirst := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !parsed.Before(currentFirst) {
		return fmt.Errorf("%w: %s", ErrCurrentMonth, month)
	}

	return sqlite.PerformWrite(a.logger, a.db, func(tx *gorm.DB) error {
		for _, r := range monthlyRollups {
			if err := a.rollupMonth(tx, r, month); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Aggregator) rollupMonth(tx *gorm.DB, r monthlyRollup, month string) error {
	monthOf := a.dialect.MonthOf("date")

	var dailyRows int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", r.daily, monthOf)
	if err := tx.Raw(countQuery, month).Scan(&dailyRows).Error; err != nil {
		return fmt.Errorf("failed to count daily rows in %s: %w", r.daily, err)
	}
	if dailyRows == 0 {
		// Nothing to consume. Existing monthly rows for the month are a
		// completed earlier rollup whose daily source was purged; leave
		// them untouched.
		a.logger.Info("No daily rows to roll up",
			slog.String("table", r.daily),
			slog.String("month", month))
		return nil
	}

	if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE month = ?", r.monthly), month).Error; err != nil {
		return fmt.Errorf("failed to purge monthly rows in %s: %w", r.monthly, err)
	}

	sums := make([]string, len(counterCols))
	for i, col := range counterCols {
		sums[i] = fmt.Sprintf("SUM(%s)", col)
	}
	dims := strings.Join(r.dims, ", ")
	insert := fmt.Sprintf(`
		INSERT INTO %s (%s, month, %s)
		SELECT %s, ?, %s
		FROM %s
		WHERE %s = ?
		GROUP BY %s`,
		r.monthly, dims, strings.Join(counterCols, ", "),
		dims, strings.Join(sums, ", "),
		r.daily,
		monthOf,
		dims)
	if err := tx.Exec(insert, month, month).Error; err != nil {
		return fmt.Errorf("failed to roll up %s into %s: %w", r.daily, r.monthly, err)
	}

	if !a.keepDaily {
		result := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.daily, monthOf), month)
		if result.Error != nil {
			return fmt.Errorf("failed to purge consumed daily rows in %s: %w", r.daily, result.Error)
		}
		a.logger.Info("Purged consumed daily rows",
			slog.String("table", r.daily),
			slog.String("month", month),
			slog.Int64("rows", result.RowsAffected))
	}

	a.logger.Info("Rolled up monthly metrics",
		slog.String("table", r.monthly),
		slog.String("month", month),
		slog.Int64("daily_rows", dailyRows))
	return nil
}
