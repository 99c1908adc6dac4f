// Package condition compiles nested filter descriptions into parameterized
// SQL boolean expressions.
//
// A Condition is an ordered list of key/value pairs. Keys are either column
// names or one of the logical connectives $and, $or and $xor. Key order is
// significant: it decides the order in which placeholders appear in the
// rendered SQL and therefore the order of the bound parameters.
//
//	cond := condition.Condition{
//		{Key: "$and", Value: []condition.Condition{condition.Where("mail", 2), condition.Where("gender", "male")}},
//		{Key: "$or", Value: []condition.Condition{condition.Where("name", 1), condition.Where("age", condition.Op("$gte", 2))}},
//	}
//	clause, err := condition.Parse(cond)
//	// clause.SQL    == "((mail = ? AND gender = ?) AND (name = ? OR age >= ?))"
//	// clause.Params == []any{2, "male", 1, 2}
package condition

import "fmt"

// Pair is a single key/value entry of a Condition or an Ops map.
type Pair struct {
	Key   string
	Value any
}

// Condition is an ordered mapping from field names or logical keys to values.
//
// A value may be a scalar (implicit equality), an Ops operator map, a nested
// []Condition (under a logical key) or a single Condition (under a logical
// key, treated as a one element array).
type Condition []Pair

// Ops is an ordered operator map such as {$gt: 5, $lte: 10}.
type Ops []Pair

// Logical is a boolean connective key.
type Logical string

const (
	And Logical = "$and"
	Or  Logical = "$or"
	Xor Logical = "$xor"
)

// SQL returns the SQL keyword for the connective.
func (l Logical) SQL() string {
	switch l {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Xor:
		return "XOR"
	default:
		return ""
	}
}

// IsLogical reports whether key is one of $and, $or, $xor.
func IsLogical(key string) bool {
	switch Logical(key) {
	case And, Or, Xor:
		return true
	}
	return false
}

// Comparison operator keys.
const (
	OpEq        = "$eq"
	OpNeq       = "$neq"
	OpGt        = "$gt"
	OpLt        = "$lt"
	OpGte       = "$gte"
	OpLte       = "$lte"
	OpLike      = "$like"
	OpIsNull    = "$isNull"
	OpIsNotNull = "$isNotNull"
	OpInc       = "$inc"
	OpIn        = "$in"
)

var comparisonOperators = map[string]string{
	OpEq:   "=",
	OpNeq:  "!=",
	OpGt:   ">",
	OpLt:   "<",
	OpGte:  ">=",
	OpLte:  "<=",
	OpLike: "LIKE",
}

// OperatorSQL returns the SQL text of a known comparison operator.
func OperatorSQL(op string) (string, bool) {
	switch op {
	case OpIsNull:
		return "IS NULL", true
	case OpIsNotNull:
		return "IS NOT NULL", true
	}
	s, ok := comparisonOperators[op]
	return s, ok
}

// Comparison is a single column/operator/value triple.
type Comparison struct {
	Field    string
	Operator string
	Value    any
}

// Clause is a rendered SQL fragment and its ordered bound parameters.
type Clause struct {
	SQL    string
	Params []any
}

// Where builds a flat Condition from alternating key/value arguments.
// It panics when given an odd number of arguments or a non-string key.
func Where(kv ...any) Condition {
	return Condition(pairs(kv))
}

// Op builds an Ops map from alternating operator/value arguments.
func Op(kv ...any) Ops {
	return Ops(pairs(kv))
}

// Inc returns the operator map that increments a column by n.
func Inc(n any) Ops {
	return Ops{{Key: OpInc, Value: n}}
}

// AndOf returns a single-key condition joining conds with AND.
func AndOf(conds ...Condition) Condition {
	return Condition{{Key: string(And), Value: conds}}
}

// OrOf returns a single-key condition joining conds with OR.
func OrOf(conds ...Condition) Condition {
	return Condition{{Key: string(Or), Value: conds}}
}

// XorOf returns a single-key condition joining conds with XOR.
func XorOf(conds ...Condition) Condition {
	return Condition{{Key: string(Xor), Value: conds}}
}

func pairs(kv []any) []Pair {
	if len(kv)%2 != 0 {
		panic("condition: odd number of key/value arguments")
	}
	out := make([]Pair, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("condition: key %v is not a string", kv[i]))
		}
		out = append(out, Pair{Key: key, Value: kv[i+1]})
	}
	return out
}

// Get returns the value stored under key.
func (c Condition) Get(key string) (any, bool) {
	for _, p := range c {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (c Condition) Keys() []string {
	keys := make([]string, len(c))
	for i, p := range c {
		keys[i] = p.Key
	}
	return keys
}

// IsEmpty reports whether the condition has no keys.
func (c Condition) IsEmpty() bool {
	return len(c) == 0
}

// HasLogical reports whether any key of c is a logical connective.
func (c Condition) HasLogical() bool {
	for _, p := range c {
		if IsLogical(p.Key) {
			return true
		}
	}
	return false
}

// Get returns the value of operator op.
func (o Ops) Get(op string) (any, bool) {
	for _, p := range o {
		if p.Key == op {
			return p.Value, true
		}
	}
	return nil, false
}

// Increment returns the $inc amount when o carries one.
func (o Ops) Increment() (any, bool) {
	return o.Get(OpInc)
}
