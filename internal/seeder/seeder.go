// Package seeder populates a development database with a demo catalog
// and generates sample usage events for the loader to pick up.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"countpress/internal/catalog"
	"countpress/internal/config"
	"countpress/internal/database"
	"countpress/internal/eventlog"
	"countpress/internal/usage"
)

var sampleUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) Safari/604.1",
}

// Seeder writes demo data: catalog rows plus a day of usage events.
type Seeder struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	events    int
}

func NewSeeder(dbManager *database.DBManager, logger *slog.Logger, events int) *Seeder {
	return &Seeder{
		dbManager: dbManager,
		logger:    logger,
		events:    events,
	}
}

// Run seeds the catalog and records sample usage events dated yesterday,
// so the next loader pass picks them up.
func (s *Seeder) Run(ctx context.Context) error {
	db := s.dbManager.GetConnection()
	if err := s.seedCatalog(db); err != nil {
		return err
	}

	cfg := config.GetConfig()
	recorder, err := eventlog.NewRecorder(cfg, s.logger)
	if err != nil {
		return err
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	for i := 0; i < s.events; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := s.randomEvent(yesterday, i)
		if err := recorder.Record(ev); err != nil {
			return fmt.Errorf("seeder: failed to record event: %w", err)
		}
	}

	s.logger.Info("Seeded demo data",
		slog.Int("events", s.events),
		slog.String("stage_dir", cfg.StageDir()))
	return nil
}

func (s *Seeder) seedCatalog(db *gorm.DB) error {
	rows := []any{
		&catalog.Context{ID: 1, Path: "demo-journal", Name: "Demo Journal", Enabled: true},
		&catalog.Submission{ID: 1, ContextID: 1, Title: "On the Migration Patterns of Batch Pipelines"},
		&catalog.Submission{ID: 2, ContextID: 1, Title: "A Survey of Counting Rules"},
		&catalog.Galley{ID: 1, SubmissionID: 1, Label: "PDF"},
		&catalog.Galley{ID: 2, SubmissionID: 2, Label: "PDF"},
		&catalog.SubmissionFile{ID: 1, SubmissionID: 1, GalleyID: 1, Name: "article-1.pdf"},
		&catalog.SubmissionFile{ID: 2, SubmissionID: 2, GalleyID: 2, Name: "article-2.pdf"},
		&catalog.Institution{ID: 1, ContextID: 1, Name: "Demo University"},
	}
	for _, row := range rows {
		if err := db.FirstOrCreate(row).Error; err != nil {
			return fmt.Errorf("seeder: failed to seed catalog: %w", err)
		}
	}
	return nil
}

func (s *Seeder) randomEvent(day time.Time, i int) eventlog.Event {
	ip := fmt.Sprintf("198.51.100.%d", rand.Intn(250)+1)
	ua := sampleUserAgents[rand.Intn(len(sampleUserAgents))]
	ts := day.Add(time.Duration(rand.Intn(86400)) * time.Second)
	submissionID := int64(rand.Intn(2) + 1)

	ev := eventlog.Event{
		Time:         ts,
		IP:           ip,
		UserAgent:    ua,
		ContextID:    1,
		SubmissionID: submissionID,
	}

	if i%3 == 0 {
		ev.CanonicalURL = fmt.Sprintf("https://demo.example.org/article/download/%d/%d/%d",
			submissionID, submissionID, submissionID)
		ev.RepresentationID = submissionID
		ev.AssocType = usage.AssocTypeSubmissionFile
		ev.AssocID = submissionID
		ev.FileType = usage.FileTypePDF
		ev.InstitutionIDs = []int64{1}
	} else {
		ev.CanonicalURL = fmt.Sprintf("https://demo.example.org/article/view/%d", submissionID)
		ev.AssocType = usage.AssocTypeSubmission
		ev.AssocID = submissionID
	}
	return ev
}
