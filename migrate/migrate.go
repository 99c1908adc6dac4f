// Package migrate applies ordered schema jobs and records them in a
// history table.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/runtime/client"
)

// Status describes one job relative to the history table.
type Status struct {
	Name      string
	Applied   bool
	AppliedAt string
	// Modified is set when an applied job's checksum no longer matches.
	Modified bool
}

// Migrator runs jobs in order, each inside its own transaction.
type Migrator struct {
	client *client.Client
	jobs   []Job
}

// New creates a migrator for jobs.
func New(c *client.Client, jobs ...Job) *Migrator {
	return &Migrator{client: c, jobs: jobs}
}

// Jobs returns the jobs in run order.
func (m *Migrator) Jobs() []Job {
	return m.jobs
}

// Run applies every job that is not in the history table and returns the
// names it applied. A failing job has Down called and its transaction
// rolled back; jobs applied before it stay applied.
func (m *Migrator) Run(ctx context.Context) ([]string, error) {
	if err := newHistory(m.client).ensure(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure migration table exists: %w", err)
	}

	var applied []string
	for _, job := range m.jobs {
		done, err := newHistory(m.client).find(ctx, job.Name())
		if err != nil {
			return applied, err
		}
		if done != nil {
			debug.Debug("migration already applied", "name", job.Name())
			continue
		}
		if err := m.apply(ctx, job); err != nil {
			return applied, fmt.Errorf("migration %s: %w", job.Name(), err)
		}
		applied = append(applied, job.Name())
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, job Job) error {
	start := time.Now()
	err := m.client.Transaction(ctx, func(tx *client.Tx) error {
		runner := NewRunner(tx)
		err := job.Up(ctx, runner)
		if err == nil {
			err = newHistory(tx).record(ctx, job.Name(), runner.ExecutedSQL(), checksum(job, runner))
		}
		if err != nil {
			if downErr := job.Down(ctx, runner); downErr != nil {
				return errors.Join(err, fmt.Errorf("down: %w", downErr))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	debug.Info("migration applied", "name", job.Name(), "duration", time.Since(start))
	return nil
}

// Status lists every job with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	h := newHistory(m.client)
	if err := h.ensure(ctx); err != nil {
		return nil, err
	}
	records, err := h.all(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	out := make([]Status, 0, len(m.jobs))
	for _, job := range m.jobs {
		st := Status{Name: job.Name()}
		if r, ok := byName[job.Name()]; ok {
			st.Applied = true
			st.AppliedAt = r.AppliedAt
			if cs, ok := job.(Checksummer); ok {
				st.Modified = r.Checksum != cs.Checksum()
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// History returns every recorded job in the order applied.
func (m *Migrator) History(ctx context.Context) ([]Record, error) {
	h := newHistory(m.client)
	if err := h.ensure(ctx); err != nil {
		return nil, err
	}
	return h.all(ctx)
}

func checksum(job Job, r *Runner) string {
	if cs, ok := job.(Checksummer); ok {
		return cs.Checksum()
	}
	return CalculateChecksum(r.ExecutedSQL()...)
}
