package migrations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"

	"ms-admission/internal/logger"
	"ms-admission/internal/models"
)

// schemaVersion is the last migration that only creates tables; later
// versions seed reference data.
const schemaVersion = 1

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// MigrationsDir is the directory containing migration files
	MigrationsDir string
	// AutoMigrate determines whether to run migrations automatically on startup
	AutoMigrate bool
	// SeedData also applies the seed migrations
	SeedData bool
}

// Runner applies the SQL migrations in MigrationsDir to a postgres database.
type Runner struct {
	bunDB    *bun.DB
	options  MigrateOptions
	migrator *migrate.Migrate
	logger   *logger.Logger
}

func NewRunner(bunDB *bun.DB, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{
		bunDB:   bunDB,
		options: opts,
		logger:  log,
	}
}

// Initialize prepares the migration system
func (r *Runner) Initialize() error {
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// RunMigrations brings the schema up to date, stopping before the seed
// migrations unless SeedData is set.
func (r *Runner) RunMigrations() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.logger.Warn("DATABASE", fmt.Sprintf("Detected dirty migration %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if r.options.SeedData {
		r.logger.LogDatabase("MIGRATE", "*", "running all migrations including seed data")
		err = r.migrator.Up()
	} else if errors.Is(err, migrate.ErrNilVersion) || version < schemaVersion {
		r.logger.LogDatabase("MIGRATE", "*", "running schema migrations only")
		err = r.migrator.Migrate(schemaVersion)
	} else {
		err = nil
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.logger.LogDatabase("MIGRATE", "*", fmt.Sprintf("current schema version: %d", version))
	}
	return nil
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}

// CreateSchema creates the tables from the models. Used for sqlite, which
// the SQL migrations do not target.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	tables := []interface{}{
		(*models.Show)(nil),
		(*models.SeatType)(nil),
		(*models.SeatAllocation)(nil),
		(*models.Ticket)(nil),
		(*models.GateStaff)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	_, err := db.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("tickets_show_status_idx").
		IfNotExists().
		Column("show_id", "status").
		Exec(ctx)
	return err
}

// Seed inserts the reference show and a gate staff member, mirroring the
// seed migration.
func Seed(ctx context.Context, db bun.IDB) error {
	now := time.Now().UTC()
	show := &models.Show{ID: 0, Name: "Opening Night", Status: models.ShowStatusScheduled, CreatedAt: now}
	seatTypes := []models.SeatType{
		{ShowID: 0, ID: 0, Name: "Standard", Price: 100, Capacity: 100},
		{ShowID: 0, ID: 1, Name: "VIP", Price: 500, Capacity: 20},
	}
	staff := &models.GateStaff{Identity: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Name: "North Gate", Active: true, CreatedAt: now}

	if _, err := db.NewInsert().Model(show).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewInsert().Model(&seatTypes).On("CONFLICT (show_id, id) DO NOTHING").Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewInsert().Model(staff).On("CONFLICT (identity) DO NOTHING").Exec(ctx)
	return err
}
