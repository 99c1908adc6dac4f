package migrate

import (
	"context"
	"fmt"

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/runtime/client"
	"github.com/satishbabariya/liteorm/schema"
)

// Job is one migration step.
type Job interface {
	// Name identifies the job in the history table.
	Name() string
	// Up applies the job.
	Up(ctx context.Context, r *Runner) error
	// Down is called when Up or recording it failed, before the
	// transaction is rolled back.
	Down(ctx context.Context, r *Runner) error
}

// Checksummer is implemented by jobs whose source can be fingerprinted.
// Other jobs are fingerprinted by the statements they executed.
type Checksummer interface {
	Checksum() string
}

// Func adapts plain functions to Job.
type Func struct {
	JobName string
	UpFn    func(ctx context.Context, r *Runner) error
	DownFn  func(ctx context.Context, r *Runner) error
}

func (f Func) Name() string { return f.JobName }

func (f Func) Up(ctx context.Context, r *Runner) error {
	if f.UpFn == nil {
		return nil
	}
	return f.UpFn(ctx, r)
}

func (f Func) Down(ctx context.Context, r *Runner) error {
	if f.DownFn == nil {
		return nil
	}
	return f.DownFn(ctx, r)
}

// Runner executes schema changes for a job and records every statement.
type Runner struct {
	exec     client.Executor
	executed []string
}

// NewRunner creates a runner on exec.
func NewRunner(exec client.Executor) *Runner {
	return &Runner{exec: exec}
}

// Exec runs query and records it.
func (r *Runner) Exec(ctx context.Context, query string) error {
	r.executed = append(r.executed, query)
	debug.Debug("migrate job exec", "sql", query)
	if err := r.exec.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateTable creates t and its indexes.
func (r *Runner) CreateTable(ctx context.Context, t schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, stmt := range schema.CreateSQL(t) {
		if err := r.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddColumn adds column to table. SQLite rejects a NOT NULL column
// without a literal default.
func (r *Runner) AddColumn(ctx context.Context, table string, column schema.Column) error {
	return r.Exec(ctx, schema.AddColumnSQL(table, column))
}

// ModifyColumn emits ALTER TABLE ... MODIFY, which SQLite does not
// understand; the statement fails there.
func (r *Runner) ModifyColumn(ctx context.Context, table string, column schema.Column) error {
	return r.Exec(ctx, schema.ModifyColumnSQL(table, column))
}

// RenameColumn renames a column.
func (r *Runner) RenameColumn(ctx context.Context, table, from, to string) error {
	return r.Exec(ctx, schema.RenameColumnSQL(table, from, to))
}

// DropColumn drops a column.
func (r *Runner) DropColumn(ctx context.Context, table, column string) error {
	return r.Exec(ctx, schema.DropColumnSQL(table, column))
}

// DropTable drops table if it exists.
func (r *Runner) DropTable(ctx context.Context, table string) error {
	return r.Exec(ctx, schema.DropTableSQL(table))
}

// ExecutedSQL returns the statements run so far, in order.
func (r *Runner) ExecutedSQL() []string {
	return append([]string(nil), r.executed...)
}
