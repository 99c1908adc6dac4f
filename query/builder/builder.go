// Package builder assembles SELECT, INSERT, UPDATE and DELETE statements
// from a table name, a projection, a compiled condition and the ordering,
// grouping and pagination clauses.
//
// Clauses may be added in any order; they are always emitted as
// where, group, order, offset, limit and their parameters are concatenated in
// that sequence. Select, Update and Delete reset the accumulated state, so a
// Builder describes one statement at a time and must not be shared between
// goroutines.
package builder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/satishbabariya/liteorm/query/condition"
)

var (
	// ErrNoTable is returned when a statement is rendered before Table.
	ErrNoTable = errors.New("builder: no table")
	// ErrEmptyRow is returned by Insert and Update without any column.
	ErrEmptyRow = errors.New("builder: empty row")
	// ErrInvalidIdentifier is returned when the identifier validator rejects a name.
	ErrInvalidIdentifier = errors.New("builder: invalid identifier")
)

// Statement is a rendered SQL statement and its positional parameters.
type Statement struct {
	SQL    string
	Params []any
}

// String implements fmt.Stringer.
func (s Statement) String() string {
	return fmt.Sprintf("%s %v", s.SQL, s.Params)
}

// Row is an ordered column/value payload for Insert and Update. A value of
// condition.Inc(n) increments the column in Update.
type Row []condition.Pair

// Set appends or replaces column.
func (r Row) Set(column string, value any) Row {
	for i := range r {
		if r[i].Key == column {
			r[i].Value = value
			return r
		}
	}
	return append(r, condition.Pair{Key: column, Value: value})
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, p := range r {
		cols[i] = p.Key
	}
	return cols
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Field     string
	Direction Direction
}

type clauseKind int

const (
	whereClause clauseKind = iota
	groupClause
	orderClause
	offsetClause
	limitClause
	clauseCount
)

// Option configures a Builder.
type Option func(*Builder)

// WithCompiler sets the condition compiler used by Where.
func WithCompiler(c *condition.Compiler) Option {
	return func(b *Builder) {
		b.compiler = c
	}
}

// WithIdentifierValidator checks table, column, order and group names before
// they are written into SQL. Without a validator identifiers are trusted.
func WithIdentifierValidator(fn func(name string) error) Option {
	return func(b *Builder) {
		b.validate = fn
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier accepts plain SQL identifiers.
func ValidIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Builder accumulates the parts of a statement.
type Builder struct {
	table    string
	fields   []string
	clauses  [clauseCount]*condition.Clause
	err      error
	compiler *condition.Compiler
	validate func(string) error
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{compiler: condition.NewCompiler()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Table sets the target table.
func (b *Builder) Table(name string) *Builder {
	b.table = name
	return b
}

// Fields sets the projection used by Select. Expressions are written verbatim.
func (b *Builder) Fields(fields ...string) *Builder {
	if len(fields) == 0 {
		return b
	}
	b.fields = fields
	return b
}

// Where compiles cond into the WHERE clause. An empty condition is ignored.
// Compile errors are returned by the next render call.
func (b *Builder) Where(cond condition.Condition) *Builder {
	if cond.IsEmpty() {
		return b
	}
	clause, err := b.compiler.Parse(cond)
	if err != nil {
		b.err = fmt.Errorf("compile where: %w", err)
		return b
	}
	b.clauses[whereClause] = &condition.Clause{SQL: "WHERE " + clause.SQL, Params: clause.Params}
	return b
}

// Order sets the ORDER BY clause.
func (b *Builder) Order(orders ...OrderBy) *Builder {
	if len(orders) == 0 {
		return b
	}
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		b.check(o.Field)
		term := o.Field
		if o.Direction != "" {
			if b.validate != nil && !validDirection(o.Direction) {
				b.fail(fmt.Errorf("%w: direction %q", ErrInvalidIdentifier, o.Direction))
			}
			term += " " + string(o.Direction)
		}
		terms = append(terms, term)
	}
	b.clauses[orderClause] = &condition.Clause{SQL: "ORDER BY " + strings.Join(terms, ",")}
	return b
}

// Group sets the GROUP BY clause.
func (b *Builder) Group(fields ...string) *Builder {
	if len(fields) == 0 {
		return b
	}
	for _, f := range fields {
		b.check(f)
	}
	b.clauses[groupClause] = &condition.Clause{SQL: "GROUP BY " + strings.Join(fields, ",")}
	return b
}

// Limit sets LIMIT; zero is ignored.
func (b *Builder) Limit(n int) *Builder {
	if n == 0 {
		return b
	}
	b.clauses[limitClause] = &condition.Clause{SQL: "LIMIT ?", Params: []any{n}}
	return b
}

// Offset sets OFFSET; zero is ignored.
func (b *Builder) Offset(n int) *Builder {
	if n == 0 {
		return b
	}
	b.clauses[offsetClause] = &condition.Clause{SQL: "OFFSET ?", Params: []any{n}}
	return b
}

// Select renders a SELECT statement and resets the builder. Fields passed
// here take precedence over Fields.
func (b *Builder) Select(fields ...string) (Statement, error) {
	defer b.Reset()
	if err := b.ready(); err != nil {
		return Statement{}, err
	}
	if len(fields) == 0 {
		fields = b.fields
	}
	projection := "*"
	if len(fields) > 0 {
		projection = strings.Join(fields, ",")
	}
	tail, params := b.tail()
	return Statement{
		SQL:    join("SELECT "+projection+" FROM "+quote(b.table), tail),
		Params: params,
	}, nil
}

// Delete renders a DELETE statement and resets the builder.
func (b *Builder) Delete() (Statement, error) {
	defer b.Reset()
	if err := b.ready(); err != nil {
		return Statement{}, err
	}
	tail, params := b.tail()
	return Statement{SQL: join("DELETE FROM "+quote(b.table), tail), Params: params}, nil
}

// Update renders an UPDATE statement and resets the builder. Columns whose
// value is an increment are written as `col`=`col` + n; every other value is
// bound as its string form. WHERE parameters follow the SET parameters.
func (b *Builder) Update(row Row) (Statement, error) {
	defer b.Reset()
	if err := b.ready(); err != nil {
		return Statement{}, err
	}
	if len(row) == 0 {
		return Statement{}, ErrEmptyRow
	}
	sets := make([]string, 0, len(row))
	params := make([]any, 0, len(row))
	for _, p := range row {
		if err := b.identifier(p.Key); err != nil {
			return Statement{}, err
		}
		if ops, ok := p.Value.(condition.Ops); ok {
			n, isInc := ops.Increment()
			if !isInc {
				return Statement{}, fmt.Errorf("%w: column %s holds operators without $inc", condition.ErrInvalidCondition, p.Key)
			}
			lit, ok := condition.NumericLiteral(n)
			if !ok {
				return Statement{}, &condition.ValueError{Op: condition.OpInc, Field: p.Key, Value: n, Err: condition.ErrNotNumeric}
			}
			sets = append(sets, fmt.Sprintf("%s=%s + %s", quote(p.Key), quote(p.Key), lit))
			continue
		}
		sets = append(sets, p.Key+"=?")
		params = append(params, stringify(p.Value))
	}
	tail, whereParams := b.tail()
	return Statement{
		SQL:    join("UPDATE "+quote(b.table)+" SET "+strings.Join(sets, ","), tail),
		Params: append(params, whereParams...),
	}, nil
}

// Insert renders an INSERT statement. It neither reads nor resets the
// WHERE, ORDER, GROUP, LIMIT or OFFSET state.
func (b *Builder) Insert(row Row) (Statement, error) {
	if err := b.ready(); err != nil {
		return Statement{}, err
	}
	if len(row) == 0 {
		return Statement{}, ErrEmptyRow
	}
	cols := make([]string, 0, len(row))
	params := make([]any, 0, len(row))
	for _, p := range row {
		if err := b.identifier(p.Key); err != nil {
			return Statement{}, err
		}
		cols = append(cols, quote(p.Key))
		params = append(params, p.Value)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return Statement{
		SQL:    fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(b.table), strings.Join(cols, ","), placeholders),
		Params: params,
	}, nil
}

// Reset clears fields, clauses and any pending error. The table is kept.
func (b *Builder) Reset() {
	b.fields = nil
	b.clauses = [clauseCount]*condition.Clause{}
	b.err = nil
}

// Err returns the pending error, if any.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) ready() error {
	if b.err != nil {
		return b.err
	}
	if b.table == "" {
		return ErrNoTable
	}
	return b.identifier(b.table)
}

// tail joins the clauses in their fixed order.
func (b *Builder) tail() (string, []any) {
	var (
		parts  []string
		params []any
	)
	for _, c := range b.clauses {
		if c == nil {
			continue
		}
		parts = append(parts, c.SQL)
		params = append(params, c.Params...)
	}
	return strings.Join(parts, " "), params
}

func (b *Builder) identifier(name string) error {
	if b.validate == nil {
		return nil
	}
	if err := b.validate(name); err != nil {
		if errors.Is(err, ErrInvalidIdentifier) {
			return err
		}
		return fmt.Errorf("%w: %q: %v", ErrInvalidIdentifier, name, err)
	}
	return nil
}

func (b *Builder) check(name string) {
	if err := b.identifier(name); err != nil {
		b.fail(err)
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func validDirection(d Direction) bool {
	switch Direction(strings.ToUpper(string(d))) {
	case Asc, Desc:
		return true
	}
	return false
}

func quote(name string) string {
	return "`" + name + "`"
}

func join(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + " " + tail
}

// stringify renders an update value as text. nil and byte slices are bound
// unchanged.
func stringify(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return val
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}
	if lit, ok := condition.NumericLiteral(v); ok {
		return lit
	}
	return fmt.Sprint(v)
}
