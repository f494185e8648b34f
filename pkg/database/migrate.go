package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

//go:embed migrations_stats/*.sql
var statsMigrationsFS embed.FS

// StatsMigrationsTable keeps the stats schema version apart from the main one,
// since both services may share a database.
const StatsMigrationsTable = "stats_schema_migrations"

// Migrate applies all pending embedded migrations (000001_*.up.sql, ...) to the database at dsn.
func Migrate(dsn string, logger *zap.Logger) error {
	return run(migrationsFS, "migrations", dsn, logger)
}

// MigrateStats applies only the endpoint hit schema used by cmd/stats.
func MigrateStats(dsn string, logger *zap.Logger) error {
	target, err := withMigrationsTable(dsn, StatsMigrationsTable)
	if err != nil {
		return err
	}
	return run(statsMigrationsFS, "migrations_stats", target, logger)
}

func run(fsys fs.FS, dir, dsn string, logger *zap.Logger) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", zap.String("set", dir), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// withMigrationsTable points the postgres driver at a dedicated version table.
func withMigrationsTable(dsn, table string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
