package dsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// filterLexer tokenizes filter expressions.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(and|or|xor|is|not|null|in|like|true|false)\b`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Operator", Pattern: `!=|<>|>=|<=|=|>|<`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expression is a chain of AND groups joined by or/xor, associating left to
// right.
type Expression struct {
	Pos   lexer.Position
	Left  *AndExpr  `@@`
	Right []*OrTerm `@@*`
}

// OrTerm is one "or"/"xor" continuation of an Expression.
type OrTerm struct {
	Op   string   `@("or" | "xor")`
	Expr *AndExpr `@@`
}

// AndExpr is a chain of terms joined by "and".
type AndExpr struct {
	Terms []*Term `@@ ( "and" @@ )*`
}

// Term is a parenthesized expression or a single comparison.
type Term struct {
	Sub        *Expression `  "(" @@ ")"`
	Comparison *Comparison `| @@`
}

// Comparison tests a single field.
type Comparison struct {
	Pos   lexer.Position
	Field string     `@Ident`
	Null  *NullCheck `( @@`
	In    *InList    `| @@`
	Op    string     `| ( @Operator | @"like" )`
	Value *Value     `  @@ )`
}

// NullCheck is "is null" or "is not null".
type NullCheck struct {
	Not bool `"is" @"not"? "null"`
}

// InList is "in (v1, v2, ...)".
type InList struct {
	Values []*Value `"in" "(" @@ ( "," @@ )* ")"`
}

// Value is a literal.
type Value struct {
	String *string `  @String`
	Number *string `| @Number`
	Bool   *string `| @("true" | "false")`
	Null   bool    `| @"null"`
}

var parser = participle.MustBuild[Expression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(2),
)
