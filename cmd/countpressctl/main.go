// main.go - operator control tool for countpress
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"countpress/internal"
	"countpress/internal/loader"
	"countpress/internal/metrics"
	"countpress/internal/pkg/botdetect"
	"countpress/internal/seeder"
	"countpress/internal/staging"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&LoadCommand{},
	&MonthlyCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// newBatchLoader builds the processing pipeline on the app's connection.
func newBatchLoader(app *internal.Application) (*loader.Loader, *metrics.Aggregator, error) {
	store, err := staging.NewStore(app.DBManager.GetConnection(), app.Logger)
	if err != nil {
		return nil, nil, err
	}
	aggregator := metrics.NewAggregator(store, app.Logger, app.Config.KeepDailyMetrics)
	return loader.New(app.Config, app.Logger, store, aggregator, botdetect.NewDetector()), aggregator, nil
}

// LoadCommand processes one usage log file in place
type LoadCommand struct{}

func (c *LoadCommand) Name() string        { return "load" }
func (c *LoadCommand) Description() string { return "Processes a usage log file" }

func (c *LoadCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <file>", c.Name())
	}
	path := args[0]

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	batchLoader, _, err := newBatchLoader(app)
	if err != nil {
		return err
	}

	result, err := batchLoader.ProcessFile(path)
	if err != nil {
		return fmt.Errorf("load finished with result %s: %w", result, err)
	}
	log.Printf("Loaded %s (load id %s)", path, loader.LoadID(path))
	return nil
}

// MonthlyCommand rolls daily metrics up for one month
type MonthlyCommand struct{}

func (c *MonthlyCommand) Name() string { return "monthly" }
func (c *MonthlyCommand) Description() string {
	return "Rolls daily metrics up into monthly tables (defaults to the previous month)"
}

func (c *MonthlyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	month := metrics.PreviousMonth()
	if len(args) >= 1 {
		month = args[0]
	}

	_, aggregator, err := newBatchLoader(app)
	if err != nil {
		return err
	}

	log.Printf("Rolling up month %s...", month)
	if err := aggregator.AggregateMonthly(month); err != nil {
		return err
	}
	log.Printf("Month %s rolled up", month)
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with demo data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds a demo catalog and sample usage events" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	events := fs.Int("events", 1000, "number of usage events to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	se := seeder.NewSeeder(app.DBManager, app.Logger, *events)
	return se.Run(ctx)
}

// StatusCommand shows row counts across the pipeline
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current pipeline status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	tables := []string{
		"usage_total_records",
		"usage_unique_investigations",
		"usage_unique_requests",
		"usage_institution_records",
		"metrics_context",
		"metrics_submission",
		"metrics_counter_submission_daily",
		"metrics_submission_geo_daily",
		"metrics_counter_submission_institution_daily",
		"metrics_counter_submission_monthly",
		"metrics_submission_geo_monthly",
		"metrics_counter_submission_institution_monthly",
	}

	log.Println("Pipeline Status:")
	for _, table := range tables {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			return fmt.Errorf("database error on %s: %w", table, err)
		}
		log.Printf("- %s: %d", table, count)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: countpressctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: countpressctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
