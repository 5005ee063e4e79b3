// backend/src/database/database.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/username/capsim/backend/src/logger"
)

var DB *sql.DB

// InitDB opens the SQLite database in WAL mode with foreign keys on and a
// busy timeout. Startup failures are fatal.
func InitDB(databasePath string) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	// SQLite allows a single writer; more connections just contend on locks.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		stdlog.Fatalf("failed to ping database: %v", err)
	}
	DB = db
	logger.L.Info("Database opened", "path", databasePath, "journalMode", "WAL")
}

func migrationsSourceURL() string {
	if os.Getenv("GO_ENV") == "PRO" {
		return "file:///app/db/migrations"
	}
	cwd, err := os.Getwd()
	if err != nil {
		stdlog.Fatalf("failed to get current working directory: %v", err)
	}
	return "file://" + filepath.ToSlash(filepath.Join(cwd, "db", "migrations"))
}

// RunMigrations applies any pending schema migrations. A failed migration
// aborts startup.
func RunMigrations(databasePath string) {
	if DB == nil {
		logger.L.Error("Database connection is not initialized before running migrations")
		return
	}

	driver, err := sqlite.WithInstance(DB, &sqlite.Config{})
	if err != nil {
		stdlog.Fatalf("could not create sqlite migration driver: %v", err)
	}

	source := migrationsSourceURL()
	m, err := migrate.NewWithDatabaseInstance(source, databasePath, driver)
	if err != nil {
		logger.L.Error("Migration instance creation failed", "source", source, "error", err)
		stdlog.Fatalf("migration instance creation failed: %v", err)
	}

	logger.L.Info("Applying database migrations...", "source", source)
	switch err := m.Up(); {
	case err == nil:
		logger.L.Info("Database migrations applied.")
	case errors.Is(err, migrate.ErrNoChange):
		logger.L.Info("Database schema is up to date.")
	default:
		logger.L.Error("Failed to apply migrations", "error", err)
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
}
