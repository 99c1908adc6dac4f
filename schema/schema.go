// Package schema describes tables and columns and renders their DDL.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// FieldType is a SQLite storage class.
type FieldType string

const (
	Integer FieldType = "INTEGER"
	Real    FieldType = "REAL"
	Null    FieldType = "NULL"
	Text    FieldType = "TEXT"
	Blob    FieldType = "BLOB"
)

var (
	// ErrNoColumns is returned for a table without columns.
	ErrNoColumns = errors.New("schema: table has no columns")
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("schema: duplicate column")
)

// Column describes one column. Name is the property name used by callers;
// SQLName is the stored column name and defaults to the snake_case of Name.
type Column struct {
	Name          string
	SQLName       string
	Type          FieldType
	Nullable      bool
	PK            bool
	AutoIncrement bool

	// Default is a literal or a func() any evaluated on every use.
	Default any

	// Encode converts a property value before it is written.
	Encode func(any) (any, error)
	// Decode converts a stored value after it is read.
	Decode func(any) (any, error)
	// OnChange runs after an update changed the column.
	OnChange func(value any) error
}

// ColumnName returns the stored column name.
func (c Column) ColumnName() string {
	if c.SQLName != "" {
		return c.SQLName
	}
	return SnakeCase(c.Name)
}

// DefaultValue evaluates Default.
func (c Column) DefaultValue() (any, bool) {
	switch d := c.Default.(type) {
	case nil:
		return nil, false
	case func() any:
		return d(), true
	case func() string:
		return d(), true
	default:
		return d, true
	}
}

// DynamicDefault reports whether Default is a generator function.
func (c Column) DynamicDefault() bool {
	switch c.Default.(type) {
	case func() any, func() string:
		return true
	}
	return false
}

// Index describes a table index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is a named, ordered set of columns.
type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Column looks up a column by property name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Lookup finds a column by property name or stored column name.
func (t Table) Lookup(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name || c.ColumnName() == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKeys returns the primary key columns.
func (t Table) PrimaryKeys() []Column {
	var pks []Column
	for _, c := range t.Columns {
		if c.PK {
			pks = append(pks, c)
		}
	}
	return pks
}

// HasColumn reports whether name is a property or stored column name.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// WithTimestamps returns a copy of t with the timestamp columns added.
func (t Table) WithTimestamps() Table {
	t.Columns = mergeColumns(t.Columns, Timestamps())
	return t
}

// Validate checks that the table can be created.
func (t Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s", ErrNoColumns, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		name := c.ColumnName()
		if seen[name] {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateColumn, t.Name, name)
		}
		seen[name] = true
	}
	return nil
}

// Primary returns the default integer primary key column.
func Primary() []Column {
	return []Column{{Name: "id", Type: Integer, PK: true, AutoIncrement: true}}
}

// Now returns the current UTC time in RFC 3339 form with milliseconds.
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Timestamps returns the createdAt and updatedAt columns.
func Timestamps() []Column {
	now := func() any { return Now() }
	return []Column{
		{Name: "createdAt", SQLName: "created_at", Type: Text, Default: now},
		{Name: "updatedAt", SQLName: "updated_at", Type: Text, Default: now},
	}
}

// Merge returns the primary key and timestamp columns followed by columns.
// A column whose name is already present replaces it in place.
func Merge(columns ...Column) []Column {
	return mergeColumns(append(Primary(), Timestamps()...), columns)
}

func mergeColumns(base, extra []Column) []Column {
	out := make([]Column, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, c := range extra {
		replaced := false
		for i := range out {
			if out[i].Name == c.Name {
				out[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}

// SnakeCase converts camelCase to snake_case. Names that are already
// lower-case are returned unchanged.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
