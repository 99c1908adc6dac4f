package condition

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Compiler renders logical trees into SQL. The zero value is ready to use
// and matches the historical rendering rules.
type Compiler struct {
	mergeGroups bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMergedGroups makes the compiler combine leaf comparisons and nested
// groups that share one array under the parent connective. Without it, an
// array holding a nested group renders only its groups and the sibling
// leaves are dropped.
func WithMergedGroups() Option {
	return func(c *Compiler) {
		c.mergeGroups = true
	}
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCompiler = &Compiler{}

// Parse compiles c with the default compiler.
func Parse(c Condition) (Clause, error) {
	return defaultCompiler.Parse(c)
}

// Transform renders tree with the default compiler.
func Transform(tree Tree, parent Logical) (Clause, error) {
	return defaultCompiler.Transform(tree, parent)
}

// ObjectToSQL renders a leaf condition with the default compiler.
func ObjectToSQL(c Condition) (Clause, error) {
	return defaultCompiler.ObjectToSQL(c)
}

// Parse normalizes, builds and renders c.
func (c *Compiler) Parse(cond Condition) (Clause, error) {
	return c.ParseAll([]Condition{cond})
}

// ParseAll compiles a sequence of conditions joined by AND.
func (c *Compiler) ParseAll(conds []Condition) (Clause, error) {
	tree, err := BuildAll(normalizeAll(conds))
	if err != nil {
		return Clause{}, err
	}
	return c.Transform(tree, "")
}

// Transform renders tree as a parenthesized boolean expression. parent is
// the connective joining the nodes of tree; it is empty at the root.
// Parameters follow the rendering order, depth first and left to right.
func (c *Compiler) Transform(tree Tree, parent Logical) (Clause, error) {
	var (
		parts  []string
		params []any
		nested int
	)
	for _, node := range tree {
		if hasLogicalChild(node.Children) {
			if !c.mergeGroups {
				groups, err := groupsOf(node)
				if err != nil {
					return Clause{}, err
				}
				return c.Transform(groups, node.Op)
			}
			groups, err := liftLeaves(node)
			if err != nil {
				return Clause{}, err
			}
			sub, err := c.Transform(groups, node.Op)
			if err != nil {
				return Clause{}, err
			}
			parts = append(parts, sub.SQL)
			params = append(params, sub.Params...)
			nested++
			continue
		}

		leaves := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			leaf, err := c.ObjectToSQL(child)
			if err != nil {
				return Clause{}, err
			}
			leaves = append(leaves, leaf.SQL)
			params = append(params, leaf.Params...)
		}
		parts = append(parts, "("+strings.Join(leaves, " "+node.Op.SQL()+" ")+")")
	}

	if nested == 1 && len(parts) == 1 {
		return Clause{SQL: parts[0], Params: params}, nil
	}
	sep := ""
	if parent != "" {
		sep = " " + parent.SQL() + " "
	} else if c.mergeGroups {
		sep = " AND "
	}
	return Clause{SQL: "(" + strings.Join(parts, sep) + ")", Params: params}, nil
}

// ObjectToSQL renders the field comparisons of a leaf condition joined by
// "and". Operator maps emit one comparison per operator; scalars compare
// for equality.
func (c *Compiler) ObjectToSQL(leaf Condition) (Clause, error) {
	var (
		parts  []string
		params []any
	)
	emit := func(op, field string, value any) error {
		s, p, err := JoinKV(op, field, value)
		if err != nil {
			return err
		}
		parts = append(parts, s)
		params = append(params, p...)
		return nil
	}
	for _, pair := range leaf {
		if IsLogical(pair.Key) {
			return Clause{}, invalidf("logical key %s inside a field group", pair.Key)
		}
		switch v := pair.Value.(type) {
		case Ops:
			for _, op := range v {
				if err := emit(op.Key, pair.Key, op.Value); err != nil {
					return Clause{}, err
				}
			}
		case Condition:
			for _, op := range v {
				if err := emit(op.Key, pair.Key, op.Value); err != nil {
					return Clause{}, err
				}
			}
		case []Condition:
			return Clause{}, invalidf("field %s holds a condition array", pair.Key)
		default:
			if err := emit(OpEq, pair.Key, v); err != nil {
				return Clause{}, err
			}
		}
	}
	return Clause{SQL: strings.Join(parts, " and "), Params: params}, nil
}

// JoinKV renders a single comparison of field under operator op.
//
// $inc inlines its numeric value and binds nothing. $isNull and $isNotNull
// bind nothing. Known comparison operators bind exactly one value, nil
// included. Any other key is a SQL function: "$in" renders "field IN(?,?)"
// binding every element of a slice value, while a bare name such as "max"
// renders "max(field)".
func JoinKV(op, field string, value any) (string, []any, error) {
	if op == OpInc {
		lit, ok := numericLiteral(value)
		if !ok {
			return "", nil, &ValueError{Op: op, Field: field, Value: value, Err: ErrNotNumeric}
		}
		return field + " = " + field + " + " + lit, nil, nil
	}
	if op == OpIsNull || op == OpIsNotNull {
		s, _ := OperatorSQL(op)
		return field + " " + s, nil, nil
	}
	if s, ok := comparisonOperators[op]; ok {
		return field + " " + s + " ?", []any{value}, nil
	}

	tmpl := sqlFunction(op, field)
	if !strings.Contains(tmpl, "%s") {
		return tmpl, nil, nil
	}
	var params []any
	if values, ok := sliceValues(value); ok {
		params = values
	} else if value != nil {
		params = []any{value}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(params)), ",")
	return strings.Replace(tmpl, "%s", placeholders, 1), params, nil
}

func sqlFunction(name, field string) string {
	if strings.HasPrefix(name, "$") {
		return field + " " + strings.Replace(strings.ToUpper(name), "$", "", 1) + "(%s)"
	}
	return name + "(" + field + ")"
}

func hasLogicalChild(children []Condition) bool {
	for _, child := range children {
		if child.HasLogical() {
			return true
		}
	}
	return false
}

// groupsOf turns the logical keys of node's children into nodes. Children
// without a logical key are not part of the result.
func groupsOf(node Node) (Tree, error) {
	var tree Tree
	for _, child := range node.Children {
		for _, pair := range child {
			if !IsLogical(pair.Key) {
				continue
			}
			conds, err := asConditions(pair.Key, pair.Value)
			if err != nil {
				return nil, err
			}
			tree = append(tree, Node{Op: Logical(pair.Key), Children: conds})
		}
	}
	return tree, nil
}

// liftLeaves is groupsOf that keeps leaves, each as its own single-child
// group under the node's connective.
func liftLeaves(node Node) (Tree, error) {
	var tree Tree
	for _, child := range node.Children {
		if !child.HasLogical() {
			tree = append(tree, Node{Op: node.Op, Children: []Condition{child}})
			continue
		}
		for _, pair := range child {
			if !IsLogical(pair.Key) {
				tree = append(tree, Node{Op: node.Op, Children: []Condition{{pair}}})
				continue
			}
			conds, err := asConditions(pair.Key, pair.Value)
			if err != nil {
				return nil, err
			}
			tree = append(tree, Node{Op: Logical(pair.Key), Children: conds})
		}
	}
	return tree, nil
}

// asConditions returns the children of a logical key. Groups must be
// non-empty and hold no empty conditions.
func asConditions(key string, v any) ([]Condition, error) {
	var conds []Condition
	switch c := v.(type) {
	case []Condition:
		conds = c
	case Condition:
		conds = NormalizeToKVPairs(c)
	default:
		return nil, invalidf("%s expects a condition array, got %T", key, v)
	}
	if len(conds) == 0 {
		return nil, invalidf("%s has no conditions", key)
	}
	for _, c := range conds {
		if c.IsEmpty() {
			return nil, invalidf("%s holds an empty condition", key)
		}
	}
	return conds, nil
}

func sliceValues(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// numericLiteral returns the SQL text of a numeric value.
func numericLiteral(v any) (string, bool) {
	switch n := v.(type) {
	case nil, bool:
		return "", false
	case decimal.Decimal:
		return n.String(), true
	case *decimal.Decimal:
		if n == nil {
			return "", false
		}
		return n.String(), true
	case json.Number:
		return decimalText(n.String())
	case string:
		return decimalText(n)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// decimalText accepts plain decimal notation only, so NaN, Inf and hex
// floats are rejected.
func decimalText(s string) (string, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return d.String(), true
}

// IsNumeric reports whether v can be inlined as an $inc amount.
func IsNumeric(v any) bool {
	_, ok := numericLiteral(v)
	return ok
}

// NumericLiteral returns the inline SQL text of a numeric value.
func NumericLiteral(v any) (string, bool) {
	return numericLiteral(v)
}
