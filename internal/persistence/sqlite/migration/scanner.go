package migration

import (
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

const descriptionPrefix = "-- Description:"

// Scanner reads migration files from a filesystem.
type Scanner struct {
	fs afero.Fs
}

// NewScanner returns a Scanner over fs. Embedded migrations can be passed as
// &afero.FromIOFS{FS: embedded}.
func NewScanner(fs afero.Fs) *Scanner {
	return &Scanner{fs: fs}
}

// Scan returns the migrations in dir ordered by numeric version. Non-SQL
// entries are ignored; badly named SQL files and duplicate versions fail.
func (s *Scanner) Scan(dir string) ([]Migration, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, newMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m, err := s.parse(dir, entry.Name())
		if err != nil {
			return nil, err
		}
		number, _ := strconv.Atoi(m.Version)
		if existing, ok := seen[number]; ok {
			return nil, newMigrationError(m.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: found in both %s and %s", ErrDuplicateVersion, existing, entry.Name()))
		}
		seen[number] = entry.Name()
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		a, _ := strconv.Atoi(migrations[i].Version)
		b, _ := strconv.Atoi(migrations[j].Version)
		return a < b
	})
	return migrations, nil
}

func (s *Scanner) parse(dir, name string) (Migration, error) {
	match := migrationFilePattern.FindStringSubmatch(name)
	if match == nil {
		return Migration{}, newMigrationError("", name, "validate filename",
			fmt.Errorf("%w: expected {version}_{description}.sql", ErrInvalidMigrationFile))
	}

	filePath := path.Join(dir, name)
	content, err := afero.ReadFile(s.fs, filePath)
	if err != nil {
		return Migration{}, newMigrationError(match[1], filePath, "read file", err)
	}
	body := string(content)
	if err := checkSQL(body); err != nil {
		return Migration{}, newMigrationError(match[1], filePath, "validate SQL", err)
	}

	sum := blake2b.Sum256(content)
	return Migration{
		Version:     match[1],
		Description: describe(body, match[2]),
		SQL:         body,
		FilePath:    filePath,
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// describe prefers a "-- Description:" header over the file name.
func describe(body, fromName string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, descriptionPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, descriptionPrefix))
		}
	}
	return strings.ReplaceAll(fromName, "_", " ")
}

func checkSQL(body string) error {
	if len(splitStatements(body)) == 0 {
		return fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile)
	}
	depth := 0
	inString := false
	for _, r := range body {
		switch {
		case r == '\'':
			inString = !inString
		case inString:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrInvalidMigrationFile)
			}
		}
	}
	if depth != 0 || inString {
		return fmt.Errorf("%w: unterminated parenthesis or string", ErrInvalidMigrationFile)
	}
	return nil
}

// splitStatements drops comment lines and splits on semicolons.
func splitStatements(body string) []string {
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
