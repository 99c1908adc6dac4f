// Package model maps schema tables to records and runs CRUD statements
// through a client.Executor.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/runtime/client"
	"github.com/satishbabariya/liteorm/schema"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("model: record not found")
	// ErrNotPersisted is returned by Save and Remove on a record without a
	// primary key value.
	ErrNotPersisted = errors.New("model: record has no primary key")
	// ErrNoPrimaryKey is returned by id lookups on a table without exactly
	// one primary key column.
	ErrNoPrimaryKey = errors.New("model: table has no single primary key")
	// ErrUnknownColumn is returned when a record attribute is not a column.
	ErrUnknownColumn = errors.New("model: unknown column")
)

// Hook runs after a record was inserted or removed. id is the primary key
// value of the affected row.
type Hook func(ctx context.Context, id any) error

// Options configures a Model.
type Options struct {
	// Timestamps adds createdAt and updatedAt and refreshes updatedAt on
	// every update.
	Timestamps bool
	OnInsert   Hook
	OnRemove   Hook
	// Logger defaults to the debug logger.
	Logger *slog.Logger
	// Compiler compiles WHERE conditions. Defaults to condition.NewCompiler().
	Compiler *condition.Compiler
}

// FindOptions shapes a SELECT. OFFSET is rendered before LIMIT, and SQLite
// only accepts OFFSET after a LIMIT, so a nonzero Offset makes the query
// fail with or without Limit. Page with a condition on the ordered key
// instead.
type FindOptions struct {
	Fields []string
	Order  []builder.OrderBy
	Group  []string
	Limit  int
	Offset int
	// Rows skips decoding; records hold the stored values.
	Rows bool
}

// Model binds a table to an executor.
type Model struct {
	table schema.Table
	exec  client.Executor
	opts  Options
}

// New creates a model for table.
func New(table schema.Table, exec client.Executor, opts Options) *Model {
	if opts.Timestamps {
		table = table.WithTimestamps()
	}
	if opts.Compiler == nil {
		opts.Compiler = condition.NewCompiler()
	}
	return &Model{table: table, exec: exec, opts: opts}
}

// Table returns the table definition, including timestamp columns.
func (m *Model) Table() schema.Table {
	return m.table
}

// WithExecutor returns a copy of m running on exec, typically a *client.Tx.
func (m *Model) WithExecutor(exec client.Executor) *Model {
	cp := *m
	cp.exec = exec
	return &cp
}

// CreateTable creates the table and its indexes when missing.
func (m *Model) CreateTable(ctx context.Context) error {
	if err := m.table.Validate(); err != nil {
		return err
	}
	for _, stmt := range schema.CreateSQL(m.table) {
		if err := m.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", m.table.Name, err)
		}
	}
	return nil
}

func (m *Model) logger() *slog.Logger {
	if m.opts.Logger != nil {
		return m.opts.Logger
	}
	return debug.Logger()
}

// builder returns a fresh builder for the table. Identifiers must be the
// table name or one of its stored column names.
func (m *Model) builder() *builder.Builder {
	return builder.New(
		builder.WithCompiler(m.opts.Compiler),
		builder.WithIdentifierValidator(m.validIdentifier),
	).Table(m.table.Name)
}

func (m *Model) validIdentifier(name string) error {
	if err := builder.ValidIdentifier(name); err != nil {
		return err
	}
	if name == m.table.Name {
		return nil
	}
	for _, c := range m.table.Columns {
		if c.ColumnName() == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no column %q", builder.ErrInvalidIdentifier, m.table.Name, name)
}

func (m *Model) primaryKey() (schema.Column, error) {
	pks := m.table.PrimaryKeys()
	if len(pks) != 1 {
		return schema.Column{}, fmt.Errorf("%w: %s", ErrNoPrimaryKey, m.table.Name)
	}
	return pks[0], nil
}

// Find returns the records matching where. Property names in where, Order
// and Group are translated to column names.
func (m *Model) Find(ctx context.Context, where condition.Condition, opts FindOptions) ([]*Record, error) {
	order := make([]builder.OrderBy, len(opts.Order))
	for i, o := range opts.Order {
		order[i] = builder.OrderBy{Field: m.columnName(o.Field), Direction: o.Direction}
	}
	group := make([]string, len(opts.Group))
	for i, g := range opts.Group {
		group[i] = m.columnName(g)
	}

	stmt, err := m.builder().
		Where(m.ToRowCondition(where)).
		Fields(opts.Fields...).
		Order(order...).
		Group(group...).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Select()
	if err != nil {
		return nil, err
	}
	rows, err := m.exec.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.table.Name, err)
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := m.instance(row, !opts.Rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindOne returns the first matching record or ErrNotFound.
func (m *Model) FindOne(ctx context.Context, where condition.Condition, opts FindOptions) (*Record, error) {
	opts.Limit = 1
	records, err := m.Find(ctx, where, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, m.table.Name)
	}
	return records[0], nil
}

// FindByID returns the record whose primary key is id.
func (m *Model) FindByID(ctx context.Context, id any) (*Record, error) {
	pk, err := m.primaryKey()
	if err != nil {
		return nil, err
	}
	return m.FindOne(ctx, condition.Where(pk.Name, id), FindOptions{})
}

// FindByIDs returns the records whose primary key is in ids.
func (m *Model) FindByIDs(ctx context.Context, ids []any) ([]*Record, error) {
	pk, err := m.primaryKey()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return m.Find(ctx, condition.Where(pk.Name, condition.Op(condition.OpIn, ids)), FindOptions{})
}

// Count returns the number of matching rows.
func (m *Model) Count(ctx context.Context, where condition.Condition) (int64, error) {
	rec, err := m.FindOne(ctx, where, FindOptions{Fields: []string{"count(*) AS count"}, Rows: true})
	if err != nil {
		return 0, err
	}
	v, _ := rec.Get("count")
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected %T", m.table.Name, v)
	}
	return n, nil
}

// Insert writes data merged over the column defaults and returns the new
// row id.
func (m *Model) Insert(ctx context.Context, data Data) (int64, error) {
	purified, err := m.Purify(data)
	if err != nil {
		return 0, err
	}
	row := merge(m.ToRowData(m.DefaultData()), m.ToRowData(purified))

	stmt, err := m.builder().Insert(builder.Row(row))
	if err != nil {
		return 0, err
	}
	res, err := m.exec.Run(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", m.table.Name, err)
	}
	m.logger().Debug("record inserted", "table", m.table.Name, "id", res.LastInsertID)

	if m.opts.OnInsert != nil {
		if err := m.opts.OnInsert(ctx, res.LastInsertID); err != nil {
			return res.LastInsertID, fmt.Errorf("insert hook: %w", err)
		}
	}
	return res.LastInsertID, nil
}

// Create inserts data and returns the stored record.
func (m *Model) Create(ctx context.Context, data Data) (*Record, error) {
	id, err := m.Insert(ctx, data)
	if err != nil {
		return nil, err
	}
	return m.FindByID(ctx, id)
}

// Update writes data to the rows matching where. With timestamps enabled
// updatedAt is refreshed. OnChange callbacks run for every column written
// with a plain value once the statement succeeded.
func (m *Model) Update(ctx context.Context, where condition.Condition, data Data) (client.RunResult, error) {
	purified, err := m.Purify(m.attachTimestamp(data))
	if err != nil {
		return client.RunResult{}, err
	}
	stmt, err := m.builder().
		Where(m.ToRowCondition(where)).
		Update(builder.Row(m.ToRowData(purified)))
	if err != nil {
		return client.RunResult{}, err
	}
	res, err := m.exec.Run(ctx, stmt)
	if err != nil {
		return res, fmt.Errorf("update %s: %w", m.table.Name, err)
	}
	m.logger().Debug("records updated", "table", m.table.Name, "changes", res.Changes)

	if err := m.onChange(purified); err != nil {
		return res, err
	}
	return res, nil
}

// Upsert updates the record identified by the primary key in data, or
// creates it when data has no key or no such record exists.
func (m *Model) Upsert(ctx context.Context, data Data) (*Record, error) {
	pk, err := m.primaryKey()
	if err != nil {
		return nil, err
	}
	if id, ok := data.Get(pk.Name); ok && id != nil {
		rec, err := m.FindByID(ctx, id)
		switch {
		case err == nil:
			if err := rec.UpdateAttributes(ctx, data); err != nil {
				return nil, err
			}
			return rec, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	return m.Create(ctx, data)
}

// Delete removes the rows matching where.
func (m *Model) Delete(ctx context.Context, where condition.Condition) (client.RunResult, error) {
	stmt, err := m.builder().Where(m.ToRowCondition(where)).Delete()
	if err != nil {
		return client.RunResult{}, err
	}
	res, err := m.exec.Run(ctx, stmt)
	if err != nil {
		return res, fmt.Errorf("delete %s: %w", m.table.Name, err)
	}
	return res, nil
}

// DeleteByID removes the row with primary key id and reports whether it
// existed.
func (m *Model) DeleteByID(ctx context.Context, id any) (bool, error) {
	pk, err := m.primaryKey()
	if err != nil {
		return false, err
	}
	res, err := m.Delete(ctx, condition.Where(pk.Name, id))
	if err != nil {
		return false, err
	}
	return res.Changes > 0, nil
}

func (m *Model) attachTimestamp(data Data) Data {
	if !m.opts.Timestamps {
		return data
	}
	return data.Set("updatedAt", schema.Now())
}

func (m *Model) onChange(changed Data) error {
	for _, p := range changed {
		if _, isOps := p.Value.(condition.Ops); isOps {
			continue
		}
		col, ok := m.table.Lookup(p.Key)
		if !ok || col.OnChange == nil {
			continue
		}
		if err := col.OnChange(p.Value); err != nil {
			return fmt.Errorf("%s.%s changed: %w", m.table.Name, col.Name, err)
		}
	}
	return nil
}

// instance builds a record from a stored row.
func (m *Model) instance(row client.Row, decode bool) (*Record, error) {
	props := m.ToProps(row)
	if decode {
		for i, p := range props {
			v, err := m.Decode(p.Key, p.Value)
			if err != nil {
				return nil, err
			}
			props[i].Value = v
		}
	}
	return newRecord(m, props), nil
}

func merge(base, over Data) Data {
	out := append(Data(nil), base...)
	for _, p := range over {
		out = out.Set(p.Key, p.Value)
	}
	return out
}
