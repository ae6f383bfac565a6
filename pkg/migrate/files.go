package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameSlugRe  = regexp.MustCompile(`[^a-z0-9]+`)
	sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`
)

type migrationFile struct {
	version int64
	slug    string
	name    string
}

func parseFileName(name string) (migrationFile, bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return migrationFile{}, false
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return migrationFile{}, false
	}
	v, _ := strconv.ParseInt(m[1], 10, 64)
	return migrationFile{version: v, slug: m[2], name: name}, true
}

func listSQL(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func slugify(name string) string {
	return strings.Trim(nameSlugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty goose migration named
// <YYYYMMDDHHMMSS>_<slug>.sql into dir and returns its path. The version is
// bumped past the newest existing file so two quick calls never collide.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" || name == "" {
		return "", fmt.Errorf("dir and name are required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := listSQL(dir)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	version, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	for _, n := range existing {
		if f, ok := parseFileName(n); ok && f.version >= version {
			next, perr := time.Parse(versionLayout, strconv.FormatInt(f.version, 10))
			if perr != nil {
				return "", perr
			}
			version, _ = strconv.ParseInt(next.Add(time.Second).Format(versionLayout), 10, 64)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, slug))
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	_, werr := fmt.Fprintf(fh, sqlTemplate, slug)
	return path, multierr.Combine(werr, fh.Close())
}

// ValidateDir checks every .sql file in dir and reports all problems at once:
// file naming, duplicate versions, and goose annotations (Up before Down,
// balanced StatementBegin/StatementEnd).
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	names, err := listSQL(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}

	var errs error
	versions := make(map[int64]string, len(names))
	for _, name := range names {
		f, ok := parseFileName(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if prev, dup := versions[f.version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %d already used by %s", name, f.version, prev))
		}
		versions[f.version] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(name, string(body)))
	}
	return errs
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	var errs error
	switch {
	case up < 0:
		errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Up", name))
	case down < 0:
		errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Down", name))
	case down < up:
		errs = multierr.Append(errs, fmt.Errorf("%s: Down section precedes Up", name))
	}
	if b, e := strings.Count(body, "-- +goose StatementBegin"), strings.Count(body, "-- +goose StatementEnd"); b != e {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d StatementBegin vs %d StatementEnd", name, b, e))
	}
	return errs
}
