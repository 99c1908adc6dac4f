package schema

import (
	"fmt"
	"strings"
)

func quote(name string) string {
	return "`" + name + "`"
}

// literal renders a default value as a quoted SQL string.
func literal(v any) string {
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}

// ColumnSQL renders a column definition. Dynamic defaults are left to the
// model, which evaluates them on insert.
func ColumnSQL(c Column) string {
	parts := []string{quote(c.ColumnName()), string(c.Type)}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != nil && !c.DynamicDefault() {
		parts = append(parts, "DEFAULT "+literal(c.Default))
	}
	if c.PK {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.AutoIncrement {
		parts = append(parts, "AUTOINCREMENT")
	}
	return strings.Join(parts, " ")
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
func CreateTableSQL(t Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = ColumnSQL(c)
	}
	return strings.Join([]string{
		"CREATE TABLE IF NOT EXISTS " + quote(t.Name) + "(",
		"  " + strings.Join(cols, ",\n  "),
		")",
	}, "\n")
}

// IndexName returns idx.Name or a name derived from the table and columns.
func IndexName(table string, idx Index) string {
	if idx.Name != "" {
		return idx.Name
	}
	return table + "_" + strings.Join(idx.Columns, "_") + "_idx"
}

// CreateIndexSQL renders CREATE INDEX IF NOT EXISTS for idx on t.
func CreateIndexSQL(t Table, idx Index) string {
	cols := make([]string, len(idx.Columns))
	for i, name := range idx.Columns {
		if c, ok := t.Lookup(name); ok {
			name = c.ColumnName()
		}
		cols[i] = quote(name)
	}
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, quote(IndexName(t.Name, idx)), quote(t.Name), strings.Join(cols, ","))
}

// CreateSQL renders the table and all of its indexes.
func CreateSQL(t Table) []string {
	stmts := []string{CreateTableSQL(t)}
	for _, idx := range t.Indexes {
		stmts = append(stmts, CreateIndexSQL(t, idx))
	}
	return stmts
}

// DropTableSQL renders DROP TABLE IF EXISTS.
func DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + quote(table)
}

// AddColumnSQL renders ALTER TABLE ... ADD.
func AddColumnSQL(table string, c Column) string {
	return "ALTER TABLE " + quote(table) + " ADD " + ColumnSQL(c)
}

// ModifyColumnSQL renders ALTER TABLE ... MODIFY. SQLite does not support
// MODIFY, so executing it there fails.
func ModifyColumnSQL(table string, c Column) string {
	return "ALTER TABLE " + quote(table) + " MODIFY " + ColumnSQL(c)
}

// RenameColumnSQL renders ALTER TABLE ... RENAME.
func RenameColumnSQL(table, from, to string) string {
	return "ALTER TABLE " + quote(table) + " RENAME " + quote(from) + " TO " + quote(to)
}

// DropColumnSQL renders ALTER TABLE ... DROP.
func DropColumnSQL(table, column string) string {
	return "ALTER TABLE " + quote(table) + " DROP " + quote(column)
}
