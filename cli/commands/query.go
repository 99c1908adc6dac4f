package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/satishbabariya/liteorm/cli/internal/ui"
	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/runtime/client"
)

var (
	findCmd   *cobra.Command
	sqlCmd    *cobra.Command
	countCmd  *cobra.Command
	deleteCmd *cobra.Command
	execCmd   *cobra.Command

	deleteYes bool
)

func init() {
	initQueryCommands()
	rootCmd.AddCommand(findCmd, sqlCmd, countCmd, deleteCmd, execCmd)
}

func addConditionFlags(fs *pflag.FlagSet, f *queryFlags) {
	fs.StringVarP(&f.where, "where", "w", "", `condition as JSON, e.g. '{"age":{"$gt":18}}'`)
	fs.StringVarP(&f.filter, "filter", "f", "", `condition as an expression, e.g. 'age > 18 and name like "a%"'`)
}

func addSelectFlags(fs *pflag.FlagSet, f *queryFlags) {
	addConditionFlags(fs, f)
	fs.StringVarP(&f.order, "order", "o", "", "sort terms, e.g. age:desc,id")
	fs.StringVar(&f.group, "group", "", "group by columns, comma separated")
	fs.StringVar(&f.fields, "fields", "", "selected columns or expressions, comma separated")
	fs.IntVarP(&f.limit, "limit", "l", 0, "maximum number of rows")
	fs.IntVar(&f.offset, "offset", 0, "rows to skip (rejected by SQLite, which needs OFFSET after LIMIT)")
}

func initQueryCommands() {
	findFlags := &queryFlags{}
	findCmd = &cobra.Command{
		Use:   "find <table>",
		Short: "Select rows from a table",
		Example: `  liteorm find users --where '{"age":{"$gte":18}}' --order age:desc --limit 10
  liteorm find users --filter 'name like "a%" or age < 30'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			findFlags.table = args[0]
			return findCommand(cmd.Context(), findFlags)
		},
	}
	addSelectFlags(findCmd.Flags(), findFlags)

	sqlFlags := &queryFlags{}
	var sqlKind string
	sqlCmd = &cobra.Command{
		Use:   "sql <table>",
		Short: "Print the SQL a query compiles to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlFlags.table = args[0]
			stmt, err := compileStatement(sqlFlags, sqlKind)
			if err != nil {
				return err
			}
			return ui.PrintSQL(stmt.SQL, stmt.Params)
		},
	}
	addSelectFlags(sqlCmd.Flags(), sqlFlags)
	sqlCmd.Flags().StringVar(&sqlKind, "kind", "select", "statement kind: select or delete")

	countFlags := &queryFlags{}
	countCmd = &cobra.Command{
		Use:   "count <table>",
		Short: "Count matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			countFlags.table = args[0]
			return countCommand(cmd.Context(), countFlags)
		},
	}
	addConditionFlags(countCmd.Flags(), countFlags)

	deleteFlags := &queryFlags{}
	deleteCmd = &cobra.Command{
		Use:   "delete <table>",
		Short: "Delete matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleteFlags.table = args[0]
			return deleteCommand(cmd.Context(), deleteFlags, deleteYes)
		},
	}
	addConditionFlags(deleteCmd.Flags(), deleteFlags)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")

	execCmd = &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute raw SQL statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(c *client.Client) error {
				if err := c.Exec(cmd.Context(), args[0]); err != nil {
					return err
				}
				ui.PrintSuccess("Executed")
				return nil
			})
		},
	}
}

func compileStatement(f *queryFlags, kind string) (builder.Statement, error) {
	b, err := f.builder()
	if err != nil {
		return builder.Statement{}, err
	}
	switch kind {
	case "select":
		return b.Select(splitList(f.fields)...)
	case "delete":
		return b.Delete()
	}
	return builder.Statement{}, fmt.Errorf("unknown statement kind %q", kind)
}

func withClient(ctx context.Context, fn func(c *client.Client) error) error {
	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func findCommand(ctx context.Context, f *queryFlags) error {
	stmt, err := compileStatement(f, "select")
	if err != nil {
		return err
	}
	return withClient(ctx, func(c *client.Client) error {
		rows, err := c.Query(ctx, stmt)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			ui.PrintInfo("No rows")
			return nil
		}
		if err := printRows(rows); err != nil {
			return err
		}
		ui.PrintInfo("%d row(s)", len(rows))
		return nil
	})
}

func printRows(rows []client.Row) error {
	headers := rows[0].Columns()
	table := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, field := range row {
			cells[j] = ui.Cell(field.Value)
		}
		table[i] = cells
	}
	return ui.PrintTable(headers, table)
}

func countCommand(ctx context.Context, f *queryFlags) error {
	b, err := f.builder()
	if err != nil {
		return err
	}
	stmt, err := b.Select("count(*) AS count")
	if err != nil {
		return err
	}
	return withClient(ctx, func(c *client.Client) error {
		rows, err := c.Query(ctx, stmt)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return errors.New("count returned no rows")
		}
		n, _ := rows[0].Get("count")
		fmt.Fprintln(ui.Out, ui.Cell(n))
		return nil
	})
}

func deleteCommand(ctx context.Context, f *queryFlags, yes bool) error {
	stmt, err := compileStatement(f, "delete")
	if err != nil {
		return err
	}
	if !yes {
		if err := ui.PrintSQL(stmt.SQL, stmt.Params); err != nil {
			return err
		}
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Delete matching rows from %s?", f.table),
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			ui.PrintWarning("Aborted")
			return nil
		}
	}
	return withClient(ctx, func(c *client.Client) error {
		res, err := c.Run(ctx, stmt)
		if err != nil {
			return err
		}
		ui.PrintSuccess("Deleted %d row(s)", res.Changes)
		return nil
	})
}
