package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/liteorm/model"
	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/runtime/client"
	"github.com/satishbabariya/liteorm/schema"
)

// HistoryTable is the table applied jobs are recorded in.
const HistoryTable = "migration"

// Record is one row of the history table.
type Record struct {
	ID        int64
	Name      string
	Content   []string
	Checksum  string
	AppliedAt string
}

func historyTable() schema.Table {
	return schema.Table{
		Name: HistoryTable,
		Columns: append(schema.Primary(),
			schema.Column{Name: "name", Type: schema.Text},
			jsonColumn("content"),
			schema.Column{Name: "checksum", Type: schema.Text, Default: ""},
			schema.Column{Name: "appliedAt", SQLName: "applied_at", Type: schema.Text, Default: func() any { return schema.Now() }},
		),
		Indexes: []schema.Index{{Name: "migration_name_uq", Columns: []string{"name"}, Unique: true}},
	}
}

func jsonColumn(name string) schema.Column {
	c := schema.JSON(name)
	c.Nullable = false
	c.Default = "[]"
	return c
}

// history reads and writes the history table through the model layer.
type history struct {
	model *model.Model
}

func newHistory(exec client.Executor) *history {
	return &history{model: model.New(historyTable(), exec, model.Options{})}
}

func (h *history) ensure(ctx context.Context) error {
	return h.model.CreateTable(ctx)
}

func (h *history) find(ctx context.Context, name string) (*Record, error) {
	rec, err := h.model.FindOne(ctx, condition.Where("name", name), model.FindOptions{})
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(rec)
}

func (h *history) all(ctx context.Context) ([]Record, error) {
	rows, err := h.model.Find(ctx, nil, model.FindOptions{Order: []builder.OrderBy{{Field: "id", Direction: builder.Asc}}})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (h *history) record(ctx context.Context, name string, executed []string, checksum string) error {
	_, err := h.model.Insert(ctx, model.Values(
		"name", name,
		"content", executed,
		"checksum", checksum,
	))
	if err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func toRecord(rec *model.Record) (*Record, error) {
	r := &Record{}
	for _, p := range rec.Attributes() {
		switch p.Key {
		case "id":
			r.ID, _ = p.Value.(int64)
		case "name":
			r.Name, _ = p.Value.(string)
		case "checksum":
			r.Checksum, _ = p.Value.(string)
		case "appliedAt":
			r.AppliedAt, _ = p.Value.(string)
		case "content":
			items, ok := p.Value.([]any)
			if !ok && p.Value != nil {
				return nil, fmt.Errorf("migration %d: content is %T", r.ID, p.Value)
			}
			for _, item := range items {
				s, _ := item.(string)
				r.Content = append(r.Content, s)
			}
		}
	}
	return r, nil
}

// CalculateChecksum returns the hex SHA-256 of the statements.
func CalculateChecksum(statements ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(statements, "\n")))
	return hex.EncodeToString(hash[:])
}
