package migrations

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

const (
	validUpContent   = "CREATE TABLE widgets (id INTEGER);"
	validDownContent = "DROP TABLE widgets;"
)

func migrationPair(seq int, name string) map[string]*fstest.MapFile {
	up := sprintfName(seq, name, "up")
	down := sprintfName(seq, name, "down")

	return map[string]*fstest.MapFile{
		up:   {Data: []byte(validUpContent)},
		down: {Data: []byte(validDownContent)},
	}
}

func sprintfName(seq int, name, direction string) string {
	digits := []byte{byte('0' + seq/100), byte('0' + (seq/10)%10), byte('0' + seq%10)}

	return string(digits) + "_" + name + "." + direction + ".sql"
}

func TestNewEmbeddedMigration_NilUsesRealEmbeddedSet(t *testing.T) {
	migration := NewEmbeddedMigration(nil)

	files, err := migration.ListEmbeddedMigrations()
	if err != nil {
		t.Fatalf("ListEmbeddedMigrations() error = %v", err)
	}

	if len(files) == 0 {
		t.Fatal("expected the real sql/ directory to be embedded and non-empty")
	}

	for _, f := range files {
		if !migrationFilenameRegex.MatchString(f) {
			t.Errorf("embedded file %s does not match naming convention", f)
		}
	}
}

func TestListEmbeddedMigrations_SortsLexicographically(t *testing.T) {
	migrations := make(map[string]*fstest.MapFile)
	for _, seq := range []int{10, 2, 1} {
		for k, v := range migrationPair(seq, "thing") {
			migrations[k] = v
		}
	}

	migration := NewEmbeddedMigration(fstest.MapFS(migrations))

	got, err := migration.ListEmbeddedMigrations()
	if err != nil {
		t.Fatalf("ListEmbeddedMigrations() error = %v", err)
	}

	want := []string{
		"001_thing.down.sql", "001_thing.up.sql",
		"002_thing.down.sql", "002_thing.up.sql",
		"010_thing.down.sql", "010_thing.up.sql",
	}

	if len(got) != len(want) {
		t.Fatalf("ListEmbeddedMigrations() = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListEmbeddedMigrations()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidateEmbeddedMigrations_RealSetPasses(t *testing.T) {
	migration := NewEmbeddedMigration(nil)

	if err := migration.ValidateEmbeddedMigrations(); err != nil {
		t.Errorf("ValidateEmbeddedMigrations() error = %v for the real embedded set", err)
	}
}

func TestValidateEmbeddedMigrations_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		fsys      fstest.MapFS
		wantErr   error
		wantMatch string
	}{
		{
			name:    "empty filesystem",
			fsys:    fstest.MapFS{},
			wantErr: ErrNoEmbeddedMigrations,
		},
		{
			name: "orphaned down migration",
			fsys: fstest.MapFS{
				"002_orphan.down.sql": {Data: []byte(validDownContent)},
				"001_ok.up.sql":       {Data: []byte(validUpContent)},
				"001_ok.down.sql":     {Data: []byte(validDownContent)},
			},
			wantMatch: "orphaned",
		},
		{
			name: "sequence gap",
			fsys: fstest.MapFS{
				"001_ok.up.sql":   {Data: []byte(validUpContent)},
				"001_ok.down.sql": {Data: []byte(validDownContent)},
				"003_ok.up.sql":   {Data: []byte(validUpContent)},
				"003_ok.down.sql": {Data: []byte(validDownContent)},
			},
			wantMatch: "gap",
		},
		{
			name: "must start at 001",
			fsys: fstest.MapFS{
				"002_ok.up.sql":   {Data: []byte(validUpContent)},
				"002_ok.down.sql": {Data: []byte(validDownContent)},
			},
			wantMatch: "must start at 001",
		},
		{
			name: "valid sequential set",
			fsys: func() fstest.MapFS {
				all := make(map[string]*fstest.MapFile)
				for _, seq := range []int{1, 2, 3} {
					for k, v := range migrationPair(seq, "ok") {
						all[k] = v
					}
				}

				return fstest.MapFS(all)
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			migration := NewEmbeddedMigration(tt.fsys)

			err := migration.ValidateEmbeddedMigrations()

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateEmbeddedMigrations() error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantMatch != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantMatch) {
					t.Errorf("ValidateEmbeddedMigrations() error = %v, want containing %q", err, tt.wantMatch)
				}
			default:
				if err != nil {
					t.Errorf("ValidateEmbeddedMigrations() unexpected error = %v", err)
				}
			}
		})
	}
}

func TestGetEmbeddedMigrationContent_MissingFile(t *testing.T) {
	migration := NewEmbeddedMigration(nil)

	if _, err := migration.GetEmbeddedMigrationContent("does_not_exist.sql"); err == nil {
		t.Error("expected error reading a non-existent embedded file")
	}
}
