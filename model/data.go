package model

import (
	"fmt"

	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/runtime/client"
)

// Data is an ordered set of property values.
type Data []condition.Pair

// Values builds Data from alternating keys and values.
func Values(kv ...any) Data {
	return Data(condition.Where(kv...))
}

// DataFromMap builds Data from m with keys in sorted order.
func DataFromMap(m map[string]any) Data {
	return Data(condition.FromMap(m))
}

// Get returns the value stored under key.
func (d Data) Get(key string) (any, bool) {
	return condition.Condition(d).Get(key)
}

// Set returns a copy of d with key set to value. An existing key keeps its
// position.
func (d Data) Set(key string, value any) Data {
	out := make(Data, len(d), len(d)+1)
	copy(out, d)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, condition.Pair{Key: key, Value: value})
}

// Keys returns the keys in order.
func (d Data) Keys() []string {
	return condition.Condition(d).Keys()
}

// Encode converts value with the column's encoder. Unknown properties and
// columns without an encoder pass value through.
func (m *Model) Encode(name string, value any) (any, error) {
	col, ok := m.table.Column(name)
	if !ok || col.Encode == nil || value == nil {
		return value, nil
	}
	v, err := col.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", m.table.Name, name, err)
	}
	return v, nil
}

// Decode converts a stored value with the column's decoder.
func (m *Model) Decode(name string, value any) (any, error) {
	col, ok := m.table.Column(name)
	if !ok || col.Decode == nil || value == nil {
		return value, nil
	}
	v, err := col.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", m.table.Name, name, err)
	}
	return v, nil
}

// Purify encodes every value of data. Operator values such as increments
// are left alone.
func (m *Model) Purify(data Data) (Data, error) {
	out := make(Data, 0, len(data))
	for _, p := range data {
		if _, isOps := p.Value.(condition.Ops); isOps {
			out = append(out, p)
			continue
		}
		v, err := m.Encode(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, condition.Pair{Key: p.Key, Value: v})
	}
	return out, nil
}

// ToRowData renames properties to their stored column names. Keys that
// are not properties are kept.
func (m *Model) ToRowData(data Data) Data {
	out := make(Data, len(data))
	for i, p := range data {
		out[i] = condition.Pair{Key: m.columnName(p.Key), Value: p.Value}
	}
	return out
}

// ToRowCondition renames the fields of cond, descending into logical
// groups.
func (m *Model) ToRowCondition(cond condition.Condition) condition.Condition {
	if len(cond) == 0 {
		return cond
	}
	out := make(condition.Condition, len(cond))
	for i, p := range cond {
		if !condition.IsLogical(p.Key) {
			out[i] = condition.Pair{Key: m.columnName(p.Key), Value: p.Value}
			continue
		}
		switch v := p.Value.(type) {
		case []condition.Condition:
			children := make([]condition.Condition, len(v))
			for j, child := range v {
				children[j] = m.ToRowCondition(child)
			}
			out[i] = condition.Pair{Key: p.Key, Value: children}
		case condition.Condition:
			out[i] = condition.Pair{Key: p.Key, Value: m.ToRowCondition(v)}
		default:
			out[i] = p
		}
	}
	return out
}

// ToProps renames the columns of row to property names.
func (m *Model) ToProps(row client.Row) Data {
	out := make(Data, len(row))
	for i, f := range row {
		name := f.Name
		if col, ok := m.table.Lookup(f.Name); ok {
			name = col.Name
		}
		out[i] = condition.Pair{Key: name, Value: f.Value}
	}
	return out
}

// DefaultData evaluates the default of every column that has one.
func (m *Model) DefaultData() Data {
	var out Data
	for _, c := range m.table.Columns {
		if v, ok := c.DefaultValue(); ok {
			out = append(out, condition.Pair{Key: c.Name, Value: v})
		}
	}
	return out
}

func (m *Model) columnName(name string) string {
	if col, ok := m.table.Column(name); ok {
		return col.ColumnName()
	}
	return name
}
