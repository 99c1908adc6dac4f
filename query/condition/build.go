package condition

// Node is one logical grouping in a compiled tree: a connective and the
// ordered conditions it joins. A child that carries a logical key is itself a
// nested group; any other child is a leaf of field comparisons.
type Node struct {
	Op       Logical
	Children []Condition
}

// Tree is the normalized form produced by Build. Build always returns a
// single root node.
type Tree []Node

// NormalizeToKVPairs flattens c into an ordered sequence of single-key
// conditions, recursing into nested condition arrays so every level of the
// input is expressed as an ordered sequence.
func NormalizeToKVPairs(c Condition) []Condition {
	out := make([]Condition, 0, len(c))
	for _, p := range c {
		val := p.Value
		switch v := p.Value.(type) {
		case []Condition:
			val = normalizeAll(v)
		case Condition:
			if IsLogical(p.Key) {
				val = NormalizeToKVPairs(v)
			}
		}
		out = append(out, Condition{{Key: p.Key, Value: val}})
	}
	return out
}

func normalizeAll(conds []Condition) []Condition {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		out = append(out, NormalizeToKVPairs(c)...)
	}
	return out
}

// Build normalizes a single condition into a logical tree.
func Build(c Condition) (Tree, error) {
	return buildValue(c, And)
}

// BuildAll folds a sequence of conditions into one $and node.
func BuildAll(conds []Condition) (Tree, error) {
	return buildValue(conds, And)
}

func buildValue(v any, op Logical) (Tree, error) {
	switch q := v.(type) {
	case []Condition:
		children := make([]Condition, 0, len(q))
		children = append(children, q...)
		return Tree{{Op: op, Children: children}}, nil
	case Condition:
		return buildCondition(q)
	default:
		return nil, invalidf("%s expects a condition array, got %T", op, v)
	}
}

func buildCondition(q Condition) (Tree, error) {
	// Plain field groups and objects mixing logical and field keys are
	// demoted one level under an implicit $and.
	if len(q) != 1 || !q.HasLogical() {
		return buildValue([]Condition{q}, And)
	}
	first := q[0]
	if _, err := asConditions(first.Key, first.Value); err != nil {
		return nil, err
	}
	return buildValue(first.Value, Logical(first.Key))
}
