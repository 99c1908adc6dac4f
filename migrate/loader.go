package migrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
)

var (
	// ErrMigrationDirNotFound is returned when the migrations directory is
	// missing.
	ErrMigrationDirNotFound = errors.New("migration directory not found")
	// ErrInvalidMigrationName is returned for a file without a version
	// prefix such as 0001_ or 1.2-.
	ErrInvalidMigrationName = errors.New("migration file name has no version prefix")
)

const (
	upMarker   = "-- +up"
	downMarker = "-- +down"
)

// SQLJob is a job read from a .sql file. Statements after a "-- +down"
// line run on failure; everything before it, or after "-- +up", runs on
// Up.
type SQLJob struct {
	name    string
	version *version.Version
	up      string
	down    string
	sum     string
}

// ParseSQLJob builds a job named name from file content.
func ParseSQLJob(name, content string) (*SQLJob, error) {
	v, err := versionOf(name)
	if err != nil {
		return nil, err
	}
	up, down, err := splitSections(content)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", name, err)
	}
	return &SQLJob{
		name:    name,
		version: v,
		up:      up,
		down:    down,
		sum:     CalculateChecksum(content),
	}, nil
}

func (j *SQLJob) Name() string { return j.name }

// Version returns the version prefix of the file name.
func (j *SQLJob) Version() *version.Version { return j.version }

func (j *SQLJob) Checksum() string { return j.sum }

func (j *SQLJob) Up(ctx context.Context, r *Runner) error {
	if j.up == "" {
		return nil
	}
	return r.Exec(ctx, j.up)
}

func (j *SQLJob) Down(ctx context.Context, r *Runner) error {
	if j.down == "" {
		return nil
	}
	return r.Exec(ctx, j.down)
}

// LoadDir reads every .sql file in dir, ordered by version prefix.
func LoadDir(fs afero.Fs, dir string) ([]Job, error) {
	ok, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMigrationDirNotFound, dir)
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var jobs []*SQLJob
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		content, err := afero.ReadFile(fs, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		job, err := ParseSQLJob(e.Name(), string(content))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		if c := jobs[i].version.Compare(jobs[k].version); c != 0 {
			return c < 0
		}
		return jobs[i].name < jobs[k].name
	})

	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = j
	}
	return out, nil
}

func versionOf(name string) (*version.Version, error) {
	prefix, _, found := strings.Cut(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if !found {
		prefix, _, found = strings.Cut(name, "-")
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMigrationName, name)
	}
	v, err := version.NewVersion(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMigrationName, name, err)
	}
	return v, nil
}

// splitSections keeps lines of any length, such as a bulk INSERT.
func splitSections(content string) (up, down string, err error) {
	var upLines, downLines []string
	target := &upLines
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), len(content)+1)
	for sc.Scan() {
		line := sc.Text()
		switch strings.ToLower(strings.TrimSpace(line)) {
		case upMarker:
			target = &upLines
			continue
		case downMarker:
			target = &downLines
			continue
		}
		*target = append(*target, line)
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(strings.Join(upLines, "\n")), strings.TrimSpace(strings.Join(downLines, "\n")), nil
}
