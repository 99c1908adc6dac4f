package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/query/dsl"
	"github.com/satishbabariya/liteorm/runtime/client"
)

func openClient(ctx context.Context) (*client.Client, error) {
	c, err := client.Open(ctx, client.Config{
		Filename:    cfg.Database,
		BusyTimeout: cfg.BusyTimeout,
		CacheSize:   cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Database, err)
	}
	if debug.Enabled() {
		c.Use(client.LoggingMiddleware(debug.Logger()))
	}
	return c, nil
}

// queryFlags are shared by the query subcommands.
type queryFlags struct {
	table  string
	where  string
	filter string
	order  string
	group  string
	fields string
	limit  int
	offset int
}

// condition resolves --where or --filter. A --where document keeps the
// default compiler; filter expressions nest leaves beside groups and need
// the merged compiler.
func (f *queryFlags) condition() (condition.Condition, *condition.Compiler, error) {
	switch {
	case f.where != "" && f.filter != "":
		return nil, nil, fmt.Errorf("--where and --filter are mutually exclusive")
	case f.filter != "":
		cond, err := dsl.Parse(f.filter)
		if err != nil {
			return nil, nil, err
		}
		return cond, condition.NewCompiler(condition.WithMergedGroups()), nil
	case f.where != "":
		var cond condition.Condition
		if err := json.Unmarshal([]byte(f.where), &cond); err != nil {
			return nil, nil, fmt.Errorf("invalid --where: %w", err)
		}
		return cond, condition.NewCompiler(), nil
	}
	return nil, condition.NewCompiler(), nil
}

// builder returns a builder for the table with where, group, order, offset
// and limit applied.
func (f *queryFlags) builder() (*builder.Builder, error) {
	cond, compiler, err := f.condition()
	if err != nil {
		return nil, err
	}
	orders, err := parseOrder(f.order)
	if err != nil {
		return nil, err
	}

	b := builder.New(
		builder.WithCompiler(compiler),
		builder.WithIdentifierValidator(builder.ValidIdentifier),
	).Table(f.table)
	if len(cond) > 0 {
		b.Where(cond)
	}
	if group := splitList(f.group); len(group) > 0 {
		b.Group(group...)
	}
	if len(orders) > 0 {
		b.Order(orders...)
	}
	if f.offset > 0 {
		b.Offset(f.offset)
	}
	if f.limit > 0 {
		b.Limit(f.limit)
	}
	return b, nil
}

// parseOrder reads "age:desc,id" into ORDER BY terms.
func parseOrder(s string) ([]builder.OrderBy, error) {
	var orders []builder.OrderBy
	for _, term := range splitList(s) {
		field, dir, found := strings.Cut(term, ":")
		order := builder.OrderBy{Field: field, Direction: builder.Asc}
		if found {
			switch strings.ToLower(dir) {
			case "asc":
			case "desc":
				order.Direction = builder.Desc
			default:
				return nil, fmt.Errorf("invalid sort direction %q", dir)
			}
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
