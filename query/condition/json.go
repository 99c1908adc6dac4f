package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// UnmarshalJSON decodes a JSON object keeping its key order. Objects under
// logical keys decode as conditions, objects under field keys as operator
// maps.
func (c *Condition) UnmarshalJSON(data []byte) error {
	dec := newDecoder(data)
	v, err := decodeCondition(dec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	*c = v
	return nil
}

// UnmarshalJSON decodes an operator map keeping its key order.
func (o *Ops) UnmarshalJSON(data []byte) error {
	dec := newDecoder(data)
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	v, err := decodeOps(dec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	*o = v
	return nil
}

// MarshalJSON encodes the condition as a JSON object in key order.
func (c Condition) MarshalJSON() ([]byte, error) {
	return marshalPairs(c)
}

// MarshalJSON encodes the operator map as a JSON object in key order.
func (o Ops) MarshalJSON() ([]byte, error) {
	return marshalPairs(o)
}

func marshalPairs(ps []Pair) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func decodeCondition(dec *json.Decoder) (Condition, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	out := Condition{}
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var val any
		if IsLogical(key) {
			val, err = decodeLogical(dec)
		} else {
			val, err = decodeFieldValue(dec)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: key, Value: val})
	}
	_, err := dec.Token()
	return out, err
}

// decodeLogical reads the value of a logical key: an array of conditions or
// a single condition.
func decodeLogical(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("logical key expects an object or array, got %v", tok)
	}
	switch d {
	case '[':
		var conds []Condition
		for dec.More() {
			c, err := decodeCondition(dec)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		_, err := dec.Token()
		return conds, err
	case '{':
		c := Condition{}
		for dec.More() {
			key, err := objectKey(dec)
			if err != nil {
				return nil, err
			}
			var val any
			if IsLogical(key) {
				val, err = decodeLogical(dec)
			} else {
				val, err = decodeFieldValue(dec)
			}
			if err != nil {
				return nil, err
			}
			c = append(c, Pair{Key: key, Value: val})
		}
		_, err := dec.Token()
		return c, err
	}
	return nil, fmt.Errorf("unexpected delimiter %v", d)
}

func decodeFieldValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			return decodeOps(dec)
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
	return scalar(tok), nil
}

// decodeOps reads an operator map whose opening brace was consumed.
func decodeOps(dec *json.Decoder) (Ops, error) {
	out := Ops{}
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		val, err := decodePlain(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: key, Value: val})
	}
	_, err := dec.Token()
	return out, err
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := decodePlain(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	_, err := dec.Token()
	return out, err
}

func decodePlain(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeOps(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
	return scalar(tok), nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// scalar converts a JSON number into int64 when it is integral and float64
// otherwise, so values bind cleanly to database drivers.
func scalar(tok json.Token) any {
	n, ok := tok.(json.Number)
	if !ok {
		return tok
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// FromMap converts an unordered map into a Condition with keys sorted
// lexically. Nested maps become conditions under logical keys and operator
// maps under field keys.
func FromMap(m map[string]any) Condition {
	out := make(Condition, 0, len(m))
	for _, key := range sortedKeys(m) {
		out = append(out, Pair{Key: key, Value: fromMapValue(key, m[key])})
	}
	return out
}

func fromMapValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		if IsLogical(key) {
			return FromMap(val)
		}
		ops := make(Ops, 0, len(val))
		for _, k := range sortedKeys(val) {
			ops = append(ops, Pair{Key: k, Value: val[k]})
		}
		return ops
	case []map[string]any:
		conds := make([]Condition, 0, len(val))
		for _, c := range val {
			conds = append(conds, FromMap(c))
		}
		return conds
	case []any:
		if !IsLogical(key) {
			return val
		}
		conds := make([]Condition, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return val
			}
			conds = append(conds, FromMap(m))
		}
		return conds
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
