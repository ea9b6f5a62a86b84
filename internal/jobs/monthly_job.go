package jobs

import (
	"log/slog"

	"countpress/internal/metrics"
)

// MonthlyJob rolls the previous month's daily metrics up into the
// monthly tables. Scheduled a couple of days into the new month so late
// loads for the old month land first.
type MonthlyJob struct {
	logger     *slog.Logger
	aggregator *metrics.Aggregator
}

func NewMonthlyJob(logger *slog.Logger, aggregator *metrics.Aggregator) *MonthlyJob {
	return &MonthlyJob{
		logger:     logger,
		aggregator: aggregator,
	}
}

func (j *MonthlyJob) Run() error {
	month := metrics.PreviousMonth()
	j.logger.Info("Starting monthly rollup", slog.String("month", month))

	if err := j.aggregator.AggregateMonthly(month); err != nil {
		return err
	}

	j.logger.Info("Monthly rollup completed", slog.String("month", month))
	return nil
}
