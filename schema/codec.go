package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JSONCodec returns an Encode/Decode pair storing values as JSON text.
func JSONCodec() (encode, decode func(any) (any, error)) {
	encode = func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return string(b), nil
	}
	decode = func(v any) (any, error) {
		var raw []byte
		switch s := v.(type) {
		case nil:
			return nil, nil
		case string:
			raw = []byte(s)
		case []byte:
			raw = s
		default:
			return v, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return out, nil
	}
	return encode, decode
}

// JSON returns a TEXT column stored as JSON.
func JSON(name string) Column {
	enc, dec := JSONCodec()
	return Column{Name: name, Type: Text, Nullable: true, Encode: enc, Decode: dec}
}

// DecimalCodec stores decimal.Decimal values as exact TEXT.
func DecimalCodec() (encode, decode func(any) (any, error)) {
	encode = func(v any) (any, error) {
		switch d := v.(type) {
		case nil:
			return nil, nil
		case decimal.Decimal:
			return d.String(), nil
		case *decimal.Decimal:
			if d == nil {
				return nil, nil
			}
			return d.String(), nil
		}
		d, err := decimal.NewFromString(fmt.Sprint(v))
		if err != nil {
			return nil, fmt.Errorf("encode decimal: %w", err)
		}
		return d.String(), nil
	}
	decode = func(v any) (any, error) {
		switch s := v.(type) {
		case nil:
			return nil, nil
		case []byte:
			return decimal.NewFromString(string(s))
		case string:
			return decimal.NewFromString(s)
		case int64:
			return decimal.NewFromInt(s), nil
		case float64:
			return decimal.NewFromFloat(s), nil
		}
		return v, nil
	}
	return encode, decode
}

// Decimal returns a TEXT column holding exact decimal values.
func Decimal(name string) Column {
	enc, dec := DecimalCodec()
	return Column{Name: name, Type: Text, Encode: enc, Decode: dec, Default: "0"}
}

// UUIDDefault generates a random UUID string.
func UUIDDefault() any {
	return uuid.NewString()
}

// UUID returns a TEXT column defaulting to a random UUID.
func UUID(name string) Column {
	return Column{Name: name, Type: Text, Default: UUIDDefault}
}
