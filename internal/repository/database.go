package repository

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver(TypeSQLite, sqlx.QUESTION)
}

// NewDB opens a database of the given type. For SQLite, path is a file path and its
// directory is created if needed; for PostgreSQL it is a connection URL.
func NewDB(dbType, path string, logger *zap.Logger) (*sqlx.DB, error) {
	switch dbType {
	case TypeSQLite:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	case TypePostgres:
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	db, err := sqlx.Connect(dbType, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbType == TypeSQLite {
		// один писатель, иначе SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	logger.Info("Successfully connected to the database", zap.String("type", dbType))
	return db, nil
}

// MigrateDB runs the embedded migrations for the database type.
func MigrateDB(db *sqlx.DB, dbType string, logger *zap.Logger) error {
	var (
		driver database.Driver
		err    error
	)
	switch dbType {
	case TypeSQLite:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	case TypePostgres:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	source, err := iofs.New(migrations, "migrations/"+dbType)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}
