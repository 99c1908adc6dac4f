package model

import (
	"context"
	"fmt"
	"reflect"

	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/runtime/client"
)

// Record is a row of a model with its attributes in column order.
type Record struct {
	model    *Model
	attrs    Data
	original Data
}

func newRecord(m *Model, attrs Data) *Record {
	return &Record{model: m, attrs: attrs, original: append(Data(nil), attrs...)}
}

// Model returns the model the record belongs to.
func (r *Record) Model() *Model {
	return r.model
}

// Get returns the attribute name.
func (r *Record) Get(name string) (any, bool) {
	return r.attrs.Get(name)
}

// Set assigns an attribute. name must be a property of the table.
func (r *Record) Set(name string, value any) error {
	if _, ok := r.model.table.Column(name); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.model.table.Name, name)
	}
	r.attrs = r.attrs.Set(name, value)
	return nil
}

// Attributes returns a copy of the attributes.
func (r *Record) Attributes() Data {
	return append(Data(nil), r.attrs...)
}

// Map returns the attributes as a map.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.attrs))
	for _, p := range r.attrs {
		out[p.Key] = p.Value
	}
	return out
}

// ID returns the primary key value.
func (r *Record) ID() (any, bool) {
	pk, err := r.model.primaryKey()
	if err != nil {
		return nil, false
	}
	v, ok := r.Get(pk.Name)
	return v, ok && v != nil
}

// Changes returns the attributes modified since the record was loaded.
func (r *Record) Changes() Data {
	var out Data
	for _, p := range r.attrs {
		old, ok := r.original.Get(p.Key)
		if !ok || !reflect.DeepEqual(old, p.Value) {
			out = append(out, p)
		}
	}
	return out
}

// MarshalJSON encodes the attributes as an object in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return condition.Condition(r.attrs).MarshalJSON()
}

func (r *Record) key() (condition.Condition, error) {
	pk, err := r.model.primaryKey()
	if err != nil {
		return nil, err
	}
	id, ok := r.original.Get(pk.Name)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPersisted, r.model.table.Name)
	}
	return condition.Where(pk.Name, id), nil
}

// Save writes the changed attributes and reloads the record. A record
// without changes is left untouched.
func (r *Record) Save(ctx context.Context) error {
	key, err := r.key()
	if err != nil {
		return err
	}
	changes := r.Changes()
	if len(changes) == 0 {
		return nil
	}
	if _, err := r.model.Update(ctx, key, changes); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// UpdateAttributes sets every key of data the record already holds and
// saves the record.
func (r *Record) UpdateAttributes(ctx context.Context, data Data) error {
	for _, p := range data {
		if _, ok := r.attrs.Get(p.Key); ok {
			r.attrs = r.attrs.Set(p.Key, p.Value)
		}
	}
	return r.Save(ctx)
}

// Reload refreshes the attributes from the database.
func (r *Record) Reload(ctx context.Context) error {
	key, err := r.key()
	if err != nil {
		return err
	}
	fresh, err := r.model.FindOne(ctx, key, FindOptions{})
	if err != nil {
		return err
	}
	r.attrs = fresh.attrs
	r.original = fresh.original
	return nil
}

// Remove deletes the record's row and runs the remove hook.
func (r *Record) Remove(ctx context.Context) (client.RunResult, error) {
	key, err := r.key()
	if err != nil {
		return client.RunResult{}, err
	}
	res, err := r.model.Delete(ctx, key)
	if err != nil {
		return res, err
	}
	if hook := r.model.opts.OnRemove; hook != nil {
		if err := hook(ctx, key[0].Value); err != nil {
			return res, fmt.Errorf("remove hook: %w", err)
		}
	}
	return res, nil
}
