// Command migrator applies, rolls back, and reports the status of the
// dataset-commit-and-serve schema's embedded SQL migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dcsp-io/dcsp/internal/migrations"
)

// ErrUnknownCommand is returned for an unrecognized CLI subcommand.
var ErrUnknownCommand = errors.New("unknown command")

// ErrDropRequiresForce guards the destructive drop command.
var ErrDropRequiresForce = errors.New("drop command requires --force")

func main() {
	force := flag.Bool("force", false, "force dangerous operations without confirmation")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("migrator: load config: %v", err)
	}

	log.Printf("migrator: starting with %s", cfg.String())

	runner, err := migrations.NewRunner(cfg.DatabaseURL, cfg.MigrationTable)
	if err != nil {
		log.Fatalf("migrator: create runner: %v", err)
	}
	defer func() { _ = runner.Close() }()

	if err := execute(args[0], runner, *force); err != nil {
		log.Fatalf("migrator: %v", err)
	}
}

func execute(command string, runner *migrations.Runner, force bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		ver, dirty, err := runner.Version()
		if err != nil {
			return err
		}

		log.Printf("migrator: version %d dirty=%v", ver, dirty)

		return nil
	case "drop":
		if !force {
			return ErrDropRequiresForce
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `migrator COMMAND

COMMANDS:
    up       apply all pending migrations
    down     roll back the last migration
    status   show migration status
    version  show current migration version
    drop     drop all tables (DESTRUCTIVE, requires --force)

ENVIRONMENT:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  migration tracking table name (default schema_migrations)`)
}
