package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // postgres driver
)

type (
	// Runner applies, rolls back, and reports the status of the embedded
	// migration set against a PostgreSQL database, mirroring the
	// teacher's Runner.
	Runner struct {
		migrate           *migrate.Migrate
		db                *sql.DB
		embeddedMigration *EmbeddedMigration
	}

	migrateLogger struct{}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewRunner opens databaseURL, validates the embedded migration set, and
// returns a ready-to-use Runner.
func NewRunner(databaseURL, migrationTable string) (*Runner, error) {
	embedded := NewEmbeddedMigration(nil)
	if err := embedded.ValidateEmbeddedMigrations(); err != nil {
		return nil, fmt.Errorf("migrations: validate embedded set: %w", err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(embedded.GetEmbeddedMigrations(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrations: create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return &Runner{migrate: m, db: db, embeddedMigration: embedded}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: down: %w", err)
	}

	return nil
}

// Status logs the current migration version and dirty state.
func (r *Runner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("migrations: no migrations applied yet")

			return nil
		}

		return fmt.Errorf("migrations: version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}

	log.Printf("migrations: version %d (%s)", ver, state)

	return nil
}

// Version returns the currently applied migration version.
func (r *Runner) Version() (uint, bool, error) {
	ver, dirty, err := r.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("migrations: version: %w", err)
	}

	return ver, dirty, nil
}

// Drop destroys every table the migrate driver knows about.
func (r *Runner) Drop() error {
	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("migrations: drop: %w", err)
	}

	return nil
}

// Close releases the source and database driver handles.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("migrations: close source: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("migrations: close db driver: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("migrations: close db: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}
