// Package loader orchestrates one usage log batch end to end: stream,
// validate, stage, deduplicate, aggregate.
package loader

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"countpress/internal/config"
	"countpress/internal/metrics"
	"countpress/internal/pkg/botdetect"
	"countpress/internal/staging"
	"countpress/internal/usage"
)

// Result classifies the outcome of one batch.
type Result int

const (
	// Success: the batch is aggregated; the file can be archived.
	Success Result = iota
	// ReturnToStaging: a transient failure after staging; the file should
	// go back to the stage directory and be retried later.
	ReturnToStaging
	// Fatal: the file is structurally broken; it should be rejected and
	// never retried.
	Fatal
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ReturnToStaging:
		return "return_to_staging"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// insertBatchSize bounds how many staged lines share one write transaction.
const insertBatchSize = 500

// errStructural marks a file that is broken beyond retry: unreadable,
// malformed JSON or a failed entry validation. Database errors while
// staging are not structural; the file stays intact and can be retried.
var errStructural = errors.New("loader: structurally invalid usage log")

// Loader runs usage log batches. All collaborators are injected.
type Loader struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *staging.Store
	aggregator *metrics.Aggregator
	bots       *botdetect.Detector
}

// New creates a loader.
func New(cfg *config.Config, logger *slog.Logger, store *staging.Store, aggregator *metrics.Aggregator, bots *botdetect.Detector) *Loader {
	return &Loader{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		aggregator: aggregator,
		bots:       bots,
	}
}

// LoadID derives the batch identifier from a file path. Re-processing
// the same file always maps to the same id.
func LoadID(path string) string {
	return filepath.Base(path)
}

// ProcessFile runs one batch end to end. The returned error carries
// detail for the log; the Result tells the caller what to do with the
// file.
func (l *Loader) ProcessFile(path string) (Result, error) {
	loadID := LoadID(path)
	logger := l.logger.With(slog.String("load_id", loadID))

	f, err := os.Open(path)
	if err != nil {
		return Fatal, fmt.Errorf("loader: cannot open %s: %w", path, err)
	}
	defer f.Close()

	// A crashed or interrupted earlier run may have left staging rows
	// behind. Purge them so the batch starts clean.
	if err := l.store.DeleteByLoadID(loadID); err != nil {
		return ReturnToStaging, fmt.Errorf("loader: failed to purge stale staging rows: %w", err)
	}

	staged, skipped, err := l.stageFile(f, loadID, logger)
	if err != nil {
		// Staging rows are left in place either way; the next run of
		// this load id purges them.
		if errors.Is(err, errStructural) {
			return Fatal, err
		}
		return ReturnToStaging, fmt.Errorf("loader: staging failed: %w", err)
	}
	logger.Info("Staged usage log file",
		slog.Int("staged", staged),
		slog.Int("skipped", skipped))

	if err := l.store.RemoveDoubleClicks(loadID, l.cfg.DoubleClickThresholdSeconds); err != nil {
		return ReturnToStaging, fmt.Errorf("loader: double-click removal failed: %w", err)
	}
	if err := l.store.CollapseUniqueInvestigations(loadID); err != nil {
		return ReturnToStaging, fmt.Errorf("loader: unique investigation collapse failed: %w", err)
	}
	if err := l.store.CollapseUniqueRequests(loadID); err != nil {
		return ReturnToStaging, fmt.Errorf("loader: unique request collapse failed: %w", err)
	}

	if err := l.aggregator.AggregateDaily(loadID); err != nil {
		return ReturnToStaging, fmt.Errorf("loader: daily aggregation failed: %w", err)
	}

	if !l.cfg.KeepStagingRecords {
		if err := l.store.DeleteByLoadID(loadID); err != nil {
			// Metrics are already durable; a failed cleanup is not worth
			// re-running the batch for.
			logger.Warn("Failed to clean up staging rows after aggregation",
				slog.Any("error", err))
		}
	}

	logger.Info("Processed usage log file", slog.String("file", path))
	return Success, nil
}

// stageFile streams the file line by line into staging. It returns the
// number of staged and skipped lines. Errors wrapping errStructural mean
// the file itself is invalid; any other error is a transient staging
// failure and the batch can be retried.
func (l *Loader) stageFile(f *os.File, loadID string, logger *slog.Logger) (int, int, error) {
	scanner := bufio.NewScanner(f)
	// Usage log lines with long canonical URLs can exceed the default
	// token size.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	type stagedLine struct {
		entry      usage.LogEntry
		lineNumber int
	}

	var (
		batch      []stagedLine
		staged     int
		skipped    int
		lineNumber int
		lastSeen   time.Time
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sqlite.PerformWrite(logger, l.store.DB(), func(tx *gorm.DB) error {
			for i := range batch {
				if err := l.store.Insert(tx, &batch[i].entry, batch[i].lineNumber, loadID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		staged += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var entry usage.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return staged, skipped, fmt.Errorf("%w: malformed JSON on line %d: %v", errStructural, lineNumber, err)
		}
		if err := usage.Validate(&entry); err != nil {
			return staged, skipped, fmt.Errorf("%w: invalid entry on line %d: %v", errStructural, lineNumber, err)
		}

		ts, _ := entry.Timestamp()
		if !lastSeen.IsZero() && ts.Before(lastSeen) {
			// Double-click removal assumes line order follows time order.
			logger.Warn("Non-monotonic timestamp in usage log",
				slog.Int("line", lineNumber),
				slog.Time("timestamp", ts))
		}
		lastSeen = ts

		if l.bots.IsBot(entry.UserAgent) {
			skipped++
			continue
		}

		missing, err := l.store.CheckForeignKeys(&entry)
		if err != nil {
			return staged, skipped, fmt.Errorf("foreign key check failed on line %d: %w", lineNumber, err)
		}
		if len(missing) > 0 {
			logger.Warn("Skipping entry with missing references",
				slog.Int("line", lineNumber),
				slog.String("missing", strings.Join(missing, ", ")))
			skipped++
			continue
		}

		batch = append(batch, stagedLine{entry: entry, lineNumber: lineNumber})
		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return staged, skipped, fmt.Errorf("failed to stage lines: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return staged, skipped, fmt.Errorf("%w: failed reading file: %v", errStructural, err)
	}
	if err := flush(); err != nil {
		return staged, skipped, fmt.Errorf("failed to stage lines: %w", err)
	}

	return staged, skipped, nil
}
