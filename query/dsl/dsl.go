// Package dsl parses a small text filter language into conditions.
//
//	age >= 18 and (name = "ann" or mail like "%@example.com")
//	deleted_at is null and id in (1, 2, 3)
//
// Keywords are case-insensitive. "and" binds tighter than "or" and "xor";
// mixed "or"/"xor" chains associate left to right. The resulting condition
// nests leaves beside groups, so it should be compiled with
// condition.WithMergedGroups to keep every comparison.
package dsl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/liteorm/query/condition"
)

// ErrSyntax wraps every parse failure.
var ErrSyntax = errors.New("filter syntax error")

var comparisonOps = map[string]string{
	"=":    condition.OpEq,
	"!=":   condition.OpNeq,
	"<>":   condition.OpNeq,
	">":    condition.OpGt,
	"<":    condition.OpLt,
	">=":   condition.OpGte,
	"<=":   condition.OpLte,
	"like": condition.OpLike,
}

// Parse converts a filter expression into a condition. Blank input yields an
// empty condition.
func Parse(input string) (condition.Condition, error) {
	if strings.TrimSpace(input) == "" {
		return condition.Condition{}, nil
	}
	expr, err := parser.ParseString("filter", input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return expr.toCondition()
}

// MustParse is Parse that panics on error.
func MustParse(input string) condition.Condition {
	c, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return c
}

func (e *Expression) toCondition() (condition.Condition, error) {
	first, err := e.Left.toCondition()
	if err != nil {
		return nil, err
	}
	var (
		op    condition.Logical
		items = []condition.Condition{first}
	)
	for _, r := range e.Right {
		next, err := r.Expr.toCondition()
		if err != nil {
			return nil, err
		}
		rop := condition.Logical("$" + strings.ToLower(r.Op))
		switch {
		case op == "":
			op = rop
		case op != rop:
			items = []condition.Condition{group(op, items)}
			op = rop
		}
		items = append(items, next)
	}
	if op == "" {
		return first, nil
	}
	return group(op, items), nil
}

func (a *AndExpr) toCondition() (condition.Condition, error) {
	items := make([]condition.Condition, 0, len(a.Terms))
	for _, t := range a.Terms {
		c, err := t.toCondition()
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return group(condition.And, items), nil
}

func (t *Term) toCondition() (condition.Condition, error) {
	if t.Sub != nil {
		return t.Sub.toCondition()
	}
	return t.Comparison.toCondition()
}

func (c *Comparison) toCondition() (condition.Condition, error) {
	switch {
	case c.Null != nil:
		if c.Null.Not {
			return condition.Where(c.Field, condition.Op(condition.OpIsNotNull, true)), nil
		}
		return condition.Where(c.Field, condition.Op(condition.OpIsNull, true)), nil
	case c.In != nil:
		values := make([]any, 0, len(c.In.Values))
		for _, v := range c.In.Values {
			lit, err := v.literal()
			if err != nil {
				return nil, err
			}
			values = append(values, lit)
		}
		return condition.Where(c.Field, condition.Op(condition.OpIn, values)), nil
	}

	op, ok := comparisonOps[strings.ToLower(c.Op)]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown operator %q", ErrSyntax, c.Pos, c.Op)
	}
	value, err := c.Value.literal()
	if err != nil {
		return nil, err
	}
	if value == nil {
		switch op {
		case condition.OpEq:
			return condition.Where(c.Field, condition.Op(condition.OpIsNull, true)), nil
		case condition.OpNeq:
			return condition.Where(c.Field, condition.Op(condition.OpIsNotNull, true)), nil
		}
	}
	if op == condition.OpEq {
		return condition.Where(c.Field, value), nil
	}
	return condition.Where(c.Field, condition.Op(op, value)), nil
}

func (v *Value) literal() (any, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Number != nil:
		if i, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(*v.Number, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, *v.Number)
		}
		return f, nil
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "true"), nil
	}
	return nil, nil
}

func group(op condition.Logical, items []condition.Condition) condition.Condition {
	return condition.Condition{{Key: string(op), Value: items}}
}
