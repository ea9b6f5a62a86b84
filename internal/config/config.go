// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`
	UsageLogsDir string `mapstructure:"usagelogsdir"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// COUNTER processing settings
	DoubleClickThresholdSeconds int  `mapstructure:"doubleclickthresholdseconds"`
	KeepDailyMetrics            bool `mapstructure:"keepdailymetrics"`
	KeepStagingRecords          bool `mapstructure:"keepstagingrecords"`

	// Job scheduling settings
	LoaderSchedule  string `mapstructure:"loaderschedule"`
	MonthlySchedule string `mapstructure:"monthlyschedule"`

	// Data retention settings
	StagingRetentionDays int `mapstructure:"stagingretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "countpress")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelInfo))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("usagelogsdir", "storage/usage_logs")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("doubleclickthresholdseconds", 30)
		v.SetDefault("keepdailymetrics", false)
		v.SetDefault("keepstagingrecords", false)
		v.SetDefault("loaderschedule", "@every 1h")
		// Day 2 of every month, after all daily loads for the previous
		// month had a chance to finish.
		v.SetDefault("monthlyschedule", "0 4 2 * *")
		v.SetDefault("stagingretentiondays", 30)

		// Bind environment variables
		v.BindEnv("appname", "COUNTPRESS_APP_NAME")
		v.BindEnv("environment", "COUNTPRESS_ENV")
		v.BindEnv("loglevel", "COUNTPRESS_LOG_LEVEL")
		v.BindEnv("privatekey", "COUNTPRESS_PRIVATE_KEY")
		v.BindEnv("storagepath", "COUNTPRESS_STORAGE_PATH")
		v.BindEnv("geodbpath", "COUNTPRESS_GEO_DB_PATH")
		v.BindEnv("usagelogsdir", "COUNTPRESS_USAGE_LOGS_DIR")
		v.BindEnv("logsdir", "COUNTPRESS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "COUNTPRESS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "COUNTPRESS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "COUNTPRESS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "COUNTPRESS_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "COUNTPRESS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "COUNTPRESS_DB_MAX_IDLE_CONNS")
		v.BindEnv("doubleclickthresholdseconds", "COUNTPRESS_DOUBLE_CLICK_THRESHOLD_SECONDS")
		v.BindEnv("keepdailymetrics", "COUNTPRESS_KEEP_DAILY_METRICS")
		v.BindEnv("keepstagingrecords", "COUNTPRESS_KEEP_STAGING_RECORDS")
		v.BindEnv("loaderschedule", "COUNTPRESS_LOADER_SCHEDULE")
		v.BindEnv("monthlyschedule", "COUNTPRESS_MONTHLY_SCHEDULE")
		v.BindEnv("stagingretentiondays", "COUNTPRESS_STAGING_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		// Validate private key - in production, must be explicitly set (not empty, not default)
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique COUNTPRESS_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.DoubleClickThresholdSeconds <= 0 {
		return fmt.Errorf("invalid double-click threshold: %d", c.DoubleClickThresholdSeconds)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.LoaderSchedule); err != nil {
		return fmt.Errorf("invalid loader schedule %q: %w", c.LoaderSchedule, err)
	}
	if _, err := parser.Parse(c.MonthlySchedule); err != nil {
		return fmt.Errorf("invalid monthly schedule %q: %w", c.MonthlySchedule, err)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// StageDir is where new usage log files wait to be processed.
func (c *Config) StageDir() string {
	return filepath.Join(c.UsageLogsDir, "stage")
}

// ProcessingDir holds the file currently being processed.
func (c *Config) ProcessingDir() string {
	return filepath.Join(c.UsageLogsDir, "processing")
}

// ArchiveDir holds successfully processed files.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.UsageLogsDir, "archive")
}

// RejectDir holds files that failed structural validation.
func (c *Config) RejectDir() string {
	return filepath.Join(c.UsageLogsDir, "reject")
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// The loader is a single-writer batch process, so the pool stays small.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1 // Required for in-memory test database stability
	}

	return 4
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1 // Matches MaxOpenConns for test stability
	}

	return 2
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
