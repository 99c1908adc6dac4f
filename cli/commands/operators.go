package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/liteorm/cli/internal/ui"
	"github.com/satishbabariya/liteorm/query/condition"
)

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List the condition operators",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := operatorsMarkdown()
		if err != nil {
			return err
		}
		return ui.PrintMarkdown(doc)
	},
}

func init() {
	rootCmd.AddCommand(operatorsCmd)
}

var operatorExamples = []struct {
	op    string
	value any
}{
	{condition.OpEq, 18},
	{condition.OpNeq, 18},
	{condition.OpGt, 18},
	{condition.OpGte, 18},
	{condition.OpLt, 18},
	{condition.OpLte, 18},
	{condition.OpLike, "a%"},
	{condition.OpIsNull, true},
	{condition.OpIsNotNull, true},
	{condition.OpIn, []any{1, 2}},
}

// operatorsMarkdown documents each operator with the SQL it compiles to.
func operatorsMarkdown() (string, error) {
	var sb strings.Builder
	sb.WriteString("# Operators\n\n| Operator | JSON | SQL | Params |\n|---|---|---|---|\n")
	for _, ex := range operatorExamples {
		cond := condition.Where("age", condition.Op(ex.op, ex.value))
		clause, err := condition.Parse(cond)
		if err != nil {
			return "", err
		}
		raw, err := cond.MarshalJSON()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "| `%s` | `%s` | `%s` | %v |\n", ex.op, raw, clause.SQL, clause.Params)
	}
	sb.WriteString(`
# Groups

` + "`$and`, `$or` and `$xor`" + ` take an array of conditions. Keys of one
condition object are joined with AND:

` + "```json\n" + `{"$or": [{"age": {"$lt": 18}}, {"name": "ann", "role": "admin"}]}
` + "```\n" + `
# Filter expressions

` + "```\n" + `age < 18 or (name = "ann" and role = "admin")
deleted_at is null and id in (1, 2, 3)
` + "```\n")
	return sb.String(), nil
}
