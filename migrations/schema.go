package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedSchema embed.FS

// ErrNoMigrations is returned when the embedded filesystem holds no usable files.
var ErrNoMigrations = errors.New("no embedded migration files found")

// Filenames must look like 001_create_tables.up.sql / 001_create_tables.down.sql.
var migrationNamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type (
	// SchemaSet is the collection of SQL migration files compiled into the
	// binary. It validates naming, up/down pairing, and sequence continuity
	// before any migration is allowed to run.
	SchemaSet struct {
		fs fs.FS
	}

	// migrationFile is one parsed migration filename.
	migrationFile struct {
		Sequence  int
		Name      string
		Direction string
	}
)

// NewSchemaSet wraps a migration filesystem. Pass nil for the compiled-in files.
func NewSchemaSet(filesystem fs.FS) *SchemaSet {
	if filesystem == nil {
		filesystem = embeddedSchema
	}

	return &SchemaSet{fs: filesystem}
}

// FS exposes the underlying filesystem for the migrate source driver.
func (s *SchemaSet) FS() fs.FS {
	return s.fs
}

// Files lists migration filenames in lexicographic order. Files that do not
// match the naming standard are excluded.
func (s *SchemaSet) Files() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && migrationNamePattern.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks that the embedded set is internally consistent: every file
// parses, every up has a down, and sequence numbers run 1..N without gaps.
func (s *SchemaSet) Validate() error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	parsed := make([]*migrationFile, 0, len(files))

	for _, name := range files {
		mf, err := parseMigrationName(name)
		if err != nil {
			return err
		}

		if _, err := fs.ReadFile(s.fs, name); err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		parsed = append(parsed, mf)
	}

	if err := validatePairing(parsed); err != nil {
		return err
	}

	return validateSequence(parsed)
}

// LatestVersion returns the highest sequence number in the set, or 0.
func (s *SchemaSet) LatestVersion() int {
	files, err := s.Files()
	if err != nil {
		return 0
	}

	latest := 0

	for _, name := range files {
		if mf, err := parseMigrationName(name); err == nil && mf.Sequence > latest {
			latest = mf.Sequence
		}
	}

	return latest
}

func parseMigrationName(name string) (*migrationFile, error) {
	matches := migrationNamePattern.FindStringSubmatch(name)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename %s (expected 001_name.up.sql or 001_name.down.sql)", name)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in %s: %w", name, err)
	}

	return &migrationFile{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
	}, nil
}

func validatePairing(files []*migrationFile) error {
	directions := make(map[string]map[string]bool)

	for _, mf := range files {
		key := fmt.Sprintf("%03d_%s", mf.Sequence, mf.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][mf.Direction] = true
	}

	for key, seen := range directions {
		if !seen["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !seen["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

func validateSequence(files []*migrationFile) error {
	seen := make(map[int]bool)
	for _, mf := range files {
		seen[mf.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d",
				sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}
