package client

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/liteorm/schema"
)

// ScanRows maps rows onto structs. A column matches the field whose db tag
// names it, or whose name equals it ignoring case or after snake_casing.
// Unmatched columns are ignored.
func ScanRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := scanInto(reflect.ValueOf(&item).Elem(), row); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// ScanRow maps a single row onto a struct.
func ScanRow[T any](row Row) (T, error) {
	var item T
	err := scanInto(reflect.ValueOf(&item).Elem(), row)
	return item, err
}

func scanInto(val reflect.Value, row Row) error {
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("scan: %s is not a struct", val.Type())
	}
	typ := val.Type()
	for _, f := range row {
		field, ok := findFieldByName(typ, f.Name)
		if !ok {
			continue
		}
		if err := assign(val.FieldByIndex(field.Index), f.Value); err != nil {
			return fmt.Errorf("scan column %s into %s: %w", f.Name, field.Name, err)
		}
	}
	return nil
}

// findFieldByName finds a struct field by column name (db tag or field name)
func findFieldByName(typ reflect.Type, column string) (reflect.StructField, bool) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := strings.Split(field.Tag.Get("db"), ",")[0]
		if tag == "-" {
			continue
		}
		if tag != "" {
			if tag == column {
				return field, true
			}
			continue
		}
		if strings.EqualFold(field.Name, column) || schema.SnakeCase(field.Name) == column {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(v)
	if dst.Kind() == reflect.Pointer {
		ptr := reflect.New(dst.Type().Elem())
		if err := assign(ptr.Elem(), v); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}
	if b, ok := v.([]byte); ok && dst.Kind() == reflect.String {
		dst.SetString(string(b))
		return nil
	}
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()) && (src.Kind() == reflect.String) == (dst.Kind() == reflect.String):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
	}
	return nil
}
