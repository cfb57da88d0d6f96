// Package database opens the bun handle for the configured driver and
// prepares its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-admission/internal/config"
	"ms-admission/internal/database/migrations"
	"ms-admission/internal/logger"
)

func Open(cfg config.DatabaseConfig) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Driver {
	case "postgres":
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite":
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway; one connection keeps
		// in-memory databases visible to every query.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// Prepare creates or migrates the schema according to cfg.
func Prepare(ctx context.Context, db *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if !cfg.AutoMigrate {
		log.LogDatabase("MIGRATE", "*", "auto migration disabled")
		return nil
	}

	if cfg.Driver == "postgres" {
		runner := migrations.NewRunner(db, migrations.MigrateOptions{
			MigrationsDir: cfg.MigrationsDir,
			AutoMigrate:   cfg.AutoMigrate,
			SeedData:      cfg.SeedData,
		}, log)
		defer runner.Close()
		return runner.RunMigrations()
	}

	if err := migrations.CreateSchema(ctx, db); err != nil {
		return err
	}
	if cfg.SeedData {
		log.LogDatabase("SEED", "*", "seeding reference show")
		return migrations.Seed(ctx, db)
	}
	return nil
}
