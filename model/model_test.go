package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/condition"
	"github.com/satishbabariya/liteorm/runtime/client"
	"github.com/satishbabariya/liteorm/schema"
)

func customerTable() schema.Table {
	return schema.Table{
		Name: "customer",
		Columns: append(schema.Primary(),
			schema.Column{Name: "username", SQLName: "user_name", Type: schema.Text, Default: ""},
			schema.Column{Name: "age", Type: schema.Integer, Default: 0},
			schema.Column{Name: "gender", Type: schema.Text, Default: func() any { return "1" }},
			schema.JSON("profile"),
		),
	}
}

func TestDataHelpers(t *testing.T) {
	m := New(customerTable(), nil, Options{})

	t.Run("purify", func(t *testing.T) {
		got, err := m.Purify(Values("age", 1, "profile", map[string]any{"bar": "quz"}))
		require.NoError(t, err)
		assert.Equal(t, Values("age", 1, "profile", `{"bar":"quz"}`), got)
	})

	t.Run("purify keeps increments", func(t *testing.T) {
		got, err := m.Purify(Values("age", condition.Inc(1)))
		require.NoError(t, err)
		assert.Equal(t, Values("age", condition.Inc(1)), got)
	})

	t.Run("to row data", func(t *testing.T) {
		assert.Equal(t, Values("age", 1, "user_name", "Achilles", "other", true),
			m.ToRowData(Values("age", 1, "username", "Achilles", "other", true)))
	})

	t.Run("to props", func(t *testing.T) {
		row := client.Row{{Name: "age", Value: int64(1)}, {Name: "user_name", Value: "Achilles"}, {Name: "count", Value: int64(3)}}
		assert.Equal(t, Values("age", int64(1), "username", "Achilles", "count", int64(3)), m.ToProps(row))
	})

	t.Run("to row condition", func(t *testing.T) {
		cond := condition.Condition{
			{Key: "username", Value: "a"},
			{Key: "$or", Value: []condition.Condition{
				condition.Where("username", "b"),
				condition.Where("age", condition.Op("$gt", 3)),
			}},
		}
		want := condition.Condition{
			{Key: "user_name", Value: "a"},
			{Key: "$or", Value: []condition.Condition{
				condition.Where("user_name", "b"),
				condition.Where("age", condition.Op("$gt", 3)),
			}},
		}
		assert.Equal(t, want, m.ToRowCondition(cond))
	})

	t.Run("encode and decode", func(t *testing.T) {
		enc, err := m.Encode("profile", map[string]any{"bar": "foo"})
		require.NoError(t, err)
		assert.Equal(t, `{"bar":"foo"}`, enc)

		dec, err := m.Decode("profile", `{"bar":"foo"}`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"bar": "foo"}, dec)

		_, err = m.Decode("profile", "{")
		assert.Error(t, err)

		same, err := m.Encode("unknown", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, same)
	})

	t.Run("default data", func(t *testing.T) {
		assert.Equal(t, Values("username", "", "age", 0, "gender", "1"), m.DefaultData())
	})

	t.Run("data set copies", func(t *testing.T) {
		d := Values("a", 1)
		d2 := d.Set("a", 2).Set("b", 3)
		assert.Equal(t, Values("a", 1), d)
		assert.Equal(t, Values("a", 2, "b", 3), d2)
		assert.Equal(t, []string{"a", "b"}, d2.Keys())
	})

	t.Run("data from map", func(t *testing.T) {
		assert.Equal(t, Values("a", 1, "b", 2), DataFromMap(map[string]any{"b": 2, "a": 1}))
	})
}

type ModelSuite struct {
	suite.Suite
	ctx      context.Context
	client   *client.Client
	customer *Model

	changed []any
	removed []any
}

func TestModelSuite(t *testing.T) {
	suite.Run(t, new(ModelSuite))
}

func (s *ModelSuite) SetupTest() {
	s.ctx = context.Background()
	c, err := client.Open(s.ctx, client.Config{})
	s.Require().NoError(err)
	s.client = c
	s.changed, s.removed = nil, nil

	table := customerTable()
	for i, col := range table.Columns {
		if col.Name == "age" {
			table.Columns[i].OnChange = func(v any) error {
				s.changed = append(s.changed, v)
				return nil
			}
		}
	}
	s.customer = New(table, c, Options{
		OnRemove: func(ctx context.Context, id any) error {
			s.removed = append(s.removed, id)
			return nil
		},
	})
	s.Require().NoError(s.customer.CreateTable(s.ctx))
}

func (s *ModelSuite) TearDownTest() {
	s.NoError(s.client.Close())
}

func (s *ModelSuite) create(name string, age int) *Record {
	rec, err := s.customer.Create(s.ctx, Values("username", name, "age", age, "profile", map[string]any{"bar": "quz"}))
	s.Require().NoError(err)
	return rec
}

func (s *ModelSuite) TestCreateAndFindByID() {
	rec := s.create("ann", 30)
	id, ok := rec.ID()
	s.Require().True(ok)
	s.Equal(int64(1), id)

	found, err := s.customer.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(Values(
		"id", int64(1),
		"username", "ann",
		"age", int64(30),
		"gender", "1",
		"profile", map[string]any{"bar": "quz"},
	), found.Attributes())

	js, err := found.MarshalJSON()
	s.Require().NoError(err)
	s.Equal(`{"id":1,"username":"ann","age":30,"gender":"1","profile":{"bar":"quz"}}`, string(js))
}

func (s *ModelSuite) TestInsertReturnsLastID() {
	s.create("ann", 30)
	id, err := s.customer.Insert(s.ctx, Values("username", "bob"))
	s.Require().NoError(err)
	s.Equal(int64(2), id)
}

func (s *ModelSuite) TestFind() {
	s.create("ann", 30)
	s.create("bob", 17)
	s.create("cid", 45)

	adults, err := s.customer.Find(s.ctx,
		condition.Where("age", condition.Op("$gte", 18)),
		FindOptions{Order: []builder.OrderBy{{Field: "age", Direction: builder.Desc}}})
	s.Require().NoError(err)
	s.Require().Len(adults, 2)
	name, _ := adults[0].Get("username")
	s.Equal("cid", name)

	byName, err := s.customer.FindOne(s.ctx, condition.Where("username", "bob"), FindOptions{})
	s.Require().NoError(err)
	age, _ := byName.Get("age")
	s.Equal(int64(17), age)

	either, err := s.customer.Find(s.ctx, condition.OrOf(
		condition.Where("username", "ann"),
		condition.Where("username", "cid"),
	), FindOptions{Fields: []string{"id"}})
	s.Require().NoError(err)
	s.Len(either, 2)

	some, err := s.customer.FindByIDs(s.ctx, []any{1, 3, 99})
	s.Require().NoError(err)
	s.Len(some, 2)

	_, err = s.customer.FindOne(s.ctx, condition.Where("username", "nobody"), FindOptions{})
	s.ErrorIs(err, ErrNotFound)

	limited, err := s.customer.Find(s.ctx, nil, FindOptions{Limit: 2})
	s.Require().NoError(err)
	s.Len(limited, 2)

	// SQLite accepts OFFSET only after LIMIT.
	_, err = s.customer.Find(s.ctx, nil, FindOptions{Limit: 1, Offset: 1})
	s.Error(err)
	_, err = s.customer.Find(s.ctx, nil, FindOptions{Offset: 1})
	s.Error(err)
}

func (s *ModelSuite) TestFindRawRows() {
	s.create("ann", 30)
	recs, err := s.customer.Find(s.ctx, nil, FindOptions{Rows: true})
	s.Require().NoError(err)
	profile, _ := recs[0].Get("profile")
	s.Equal(`{"bar":"quz"}`, profile)
}

func (s *ModelSuite) TestCount() {
	s.create("ann", 30)
	s.create("bob", 17)

	n, err := s.customer.Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.customer.Count(s.ctx, condition.Where("username", "bob"))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *ModelSuite) TestUpdate() {
	rec := s.create("ann", 30)
	id, _ := rec.ID()

	res, err := s.customer.Update(s.ctx, condition.Where("id", id), Values("age", 31))
	s.Require().NoError(err)
	s.Equal(int64(1), res.Changes)
	s.Equal([]any{31}, s.changed)

	_, err = s.customer.Update(s.ctx, condition.Where("username", "ann"), Values("age", condition.Inc(2)))
	s.Require().NoError(err)

	s.Require().NoError(rec.Reload(s.ctx))
	age, _ := rec.Get("age")
	s.Equal(int64(33), age)
}

func (s *ModelSuite) TestRejectsUnknownColumns() {
	_, err := s.customer.Update(s.ctx, nil, Values("nope", 1))
	s.ErrorIs(err, builder.ErrInvalidIdentifier)

	_, err = s.customer.Find(s.ctx, nil, FindOptions{Order: []builder.OrderBy{{Field: "nope"}}})
	s.ErrorIs(err, builder.ErrInvalidIdentifier)

	_, err = s.customer.Find(s.ctx, nil, FindOptions{Order: []builder.OrderBy{{Field: "age", Direction: "sideways"}}})
	s.ErrorIs(err, builder.ErrInvalidIdentifier)
}

func (s *ModelSuite) TestRecordSave() {
	rec := s.create("ann", 30)
	s.Empty(rec.Changes())

	s.Require().NoError(rec.Set("age", 40))
	s.Equal(Values("age", 40), rec.Changes())
	s.ErrorIs(rec.Set("nope", 1), ErrUnknownColumn)

	s.Require().NoError(rec.Save(s.ctx))
	s.Empty(rec.Changes())
	age, _ := rec.Get("age")
	s.Equal(int64(40), age)

	s.Require().NoError(rec.Save(s.ctx))
	s.Equal([]any{40}, s.changed)
}

func (s *ModelSuite) TestUpdateAttributes() {
	rec := s.create("ann", 30)
	s.Require().NoError(rec.UpdateAttributes(s.ctx, Values("username", "anna", "missing", 1)))

	found, err := s.customer.FindByID(s.ctx, int64(1))
	s.Require().NoError(err)
	name, _ := found.Get("username")
	s.Equal("anna", name)
	_, ok := found.Get("missing")
	s.False(ok)
}

func (s *ModelSuite) TestUpsert() {
	created, err := s.customer.Upsert(s.ctx, Values("username", "ann"))
	s.Require().NoError(err)
	id, _ := created.ID()

	updated, err := s.customer.Upsert(s.ctx, Values("id", id, "username", "anna"))
	s.Require().NoError(err)
	name, _ := updated.Get("username")
	s.Equal("anna", name)

	fresh, err := s.customer.Upsert(s.ctx, Values("id", int64(42), "username", "zed"))
	s.Require().NoError(err)
	freshID, _ := fresh.ID()
	s.Equal(int64(42), freshID)

	n, err := s.customer.Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}

func (s *ModelSuite) TestRemoveAndDelete() {
	ann := s.create("ann", 30)
	s.create("bob", 17)
	s.create("cid", 45)

	res, err := ann.Remove(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), res.Changes)
	s.Equal([]any{int64(1)}, s.removed)

	ok, err := s.customer.DeleteByID(s.ctx, int64(2))
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.customer.DeleteByID(s.ctx, int64(2))
	s.Require().NoError(err)
	s.False(ok)

	res, err = s.customer.Delete(s.ctx, condition.Where("username", "cid"))
	s.Require().NoError(err)
	s.Equal(int64(1), res.Changes)

	partial, err := s.customer.Find(s.ctx, nil, FindOptions{Fields: []string{"user_name"}})
	s.Require().NoError(err)
	s.Empty(partial)
}

func (s *ModelSuite) TestRemoveWithoutKey() {
	s.create("ann", 30)
	recs, err := s.customer.Find(s.ctx, nil, FindOptions{Fields: []string{"user_name"}})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)

	_, err = recs[0].Remove(s.ctx)
	s.ErrorIs(err, ErrNotPersisted)
	s.ErrorIs(recs[0].Save(s.ctx), ErrNotPersisted)
}

func (s *ModelSuite) TestTransaction() {
	err := s.client.Transaction(s.ctx, func(tx *client.Tx) error {
		if _, err := s.customer.WithExecutor(tx).Create(s.ctx, Values("username", "ann")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	n, err := s.customer.Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ModelSuite) TestTimestamps() {
	posts := New(schema.Table{
		Name: "post",
		Columns: append(schema.Primary(),
			schema.Column{Name: "title", Type: schema.Text, Default: ""},
		),
	}, s.client, Options{Timestamps: true})
	s.Require().NoError(posts.CreateTable(s.ctx))

	rec, err := posts.Create(s.ctx, Values("title", "hello"))
	s.Require().NoError(err)
	created, ok := rec.Get("createdAt")
	s.Require().True(ok)
	_, err = time.Parse(time.RFC3339, created.(string))
	s.NoError(err)

	s.Require().NoError(rec.Set("title", "bye"))
	changes := rec.Changes()
	s.Equal([]string{"title"}, changes.Keys())

	time.Sleep(2 * time.Millisecond)
	s.Require().NoError(rec.Save(s.ctx))
	updated, _ := rec.Get("updatedAt")
	s.NotEqual(created, updated)
}
