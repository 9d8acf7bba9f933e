// Package migrations embeds the dataset-commit-and-serve schema's SQL
// migration files and validates them at startup, adapted from the
// teacher's standalone migrator tool into a library package so both
// cmd/migrator and integration test helpers can share the same embedded
// set.
package migrations

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// ErrNoEmbeddedMigrations is returned when the embedded filesystem has no
// well-formed migration files at all.
var ErrNoEmbeddedMigrations = errors.New("migrations: no embedded migration files found")

// EmbeddedMigration validates and serves the embedded *.sql files.
type EmbeddedMigration struct {
	fs        fs.FS
	checksums map[string]string
}

// MigrationInfo is the parsed shape of one migration filename.
type MigrationInfo struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

//go:embed sql/*.sql
var embeddedMigrations embed.FS

var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// NewEmbeddedMigration constructs an EmbeddedMigration. Pass nil to use
// the build's embedded sql/ directory.
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		sub, err := fs.Sub(embeddedMigrations, "sql")
		if err != nil {
			panic(fmt.Sprintf("migrations: embedded sql directory missing: %v", err))
		}

		filesystem = sub
	}

	return &EmbeddedMigration{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// GetEmbeddedMigrations returns the underlying filesystem.
func (e *EmbeddedMigration) GetEmbeddedMigrations() fs.FS {
	return e.fs
}

// ListEmbeddedMigrations lists all well-formed migration filenames,
// lexicographically sorted.
func (e *EmbeddedMigration) ListEmbeddedMigrations() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// ValidateEmbeddedMigrations checks filename format, up/down pairing, and
// sequence gaps across the embedded set.
func (e *EmbeddedMigration) ValidateEmbeddedMigrations() error {
	files, err := e.ListEmbeddedMigrations()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoEmbeddedMigrations
	}

	if err := e.validatePairing(files); err != nil {
		return err
	}

	if err := e.validateSequence(files); err != nil {
		return err
	}

	for _, file := range files {
		content, err := e.GetEmbeddedMigrationContent(file)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", file, err)
		}

		e.checksums[file] = e.calculateChecksum(content)
	}

	return nil
}

// GetEmbeddedMigrationContent reads one embedded file's content.
func (e *EmbeddedMigration) GetEmbeddedMigrationContent(filename string) ([]byte, error) {
	return fs.ReadFile(e.fs, filename)
}

func (e *EmbeddedMigration) parseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf("migrations: invalid filename %s (expected NNN_name.up|down.sql)", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("migrations: invalid sequence in %s: %w", filename, err)
	}

	return &MigrationInfo{Sequence: sequence, Name: matches[2], Direction: matches[3], Filename: filename}, nil
}

func (e *EmbeddedMigration) validatePairing(files []string) error {
	byKey := make(map[string]map[string]*MigrationInfo)

	for _, file := range files {
		info, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if byKey[key] == nil {
			byKey[key] = make(map[string]*MigrationInfo)
		}

		byKey[key][info.Direction] = info
	}

	for key, directions := range byKey {
		if _, hasUp := directions["up"]; !hasUp {
			return fmt.Errorf("migrations: orphaned down migration for %s", key)
		}

		if _, hasDown := directions["down"]; !hasDown {
			return fmt.Errorf("migrations: orphaned up migration for %s", key)
		}
	}

	return nil
}

func (e *EmbeddedMigration) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		info, err := e.parseMigrationFilename(file)
		if err != nil {
			return err
		}

		seen[info.Sequence] = true
	}

	var sequences []int
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migrations: sequence must start at 001, found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("migrations: gap in sequence: expected %03d, found %03d", sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}

func (e *EmbeddedMigration) calculateChecksum(content []byte) string {
	hash := sha256.Sum256(content)

	return fmt.Sprintf("%x", hash)
}
