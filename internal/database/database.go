package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"countpress/internal/catalog"
	"countpress/internal/config"
	"countpress/internal/metrics"
	"countpress/internal/staging"
)

// DBManager wraps cartridge's sqlite.Manager with countpress-specific migration methods.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// AllModels returns every model the pipeline persists, in migration order.
func AllModels() []any {
	return []any{
		&catalog.Context{},
		&catalog.Submission{},
		&catalog.Galley{},
		&catalog.SubmissionFile{},
		&catalog.Institution{},
		&staging.TotalRecord{},
		&staging.UniqueInvestigationRecord{},
		&staging.UniqueRequestRecord{},
		&staging.InstitutionRecord{},
		&metrics.ContextMetric{},
		&metrics.SubmissionMetric{},
		&metrics.CounterSubmissionDaily{},
		&metrics.SubmissionGeoDaily{},
		&metrics.CounterSubmissionInstitutionDaily{},
		&metrics.CounterSubmissionMonthly{},
		&metrics.SubmissionGeoMonthly{},
		&metrics.CounterSubmissionInstitutionMonthly{},
	}
}

// MigrateDatabase runs countpress-specific migrations.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	// Run migrations in a transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(AllModels()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
