package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/condition"
)

type ClientSuite struct {
	suite.Suite
	ctx    context.Context
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	c, err := Open(s.ctx, Config{Filename: ":memory:"})
	s.Require().NoError(err)
	s.client = c
	s.Require().NoError(c.Exec(s.ctx, "CREATE TABLE `users` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `name` TEXT, `age` INTEGER)"))
}

func (s *ClientSuite) TearDownTest() {
	s.NoError(s.client.Close())
}

func (s *ClientSuite) insert(name string, age int) RunResult {
	stmt, err := builder.New().Table("users").Insert(builder.Row{{Key: "name", Value: name}, {Key: "age", Value: age}})
	s.Require().NoError(err)
	res, err := s.client.Run(s.ctx, stmt)
	s.Require().NoError(err)
	return res
}

func (s *ClientSuite) TestRunAndQuery() {
	first := s.insert("ann", 30)
	s.Equal(int64(1), first.Changes)
	s.Equal(int64(1), first.LastInsertID)
	s.insert("bob", 17)

	stmt, err := builder.New().
		Table("users").
		Where(condition.Where("age", condition.Op("$gte", 18))).
		Select("id", "name")
	s.Require().NoError(err)

	rows, err := s.client.Query(s.ctx, stmt)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal([]string{"id", "name"}, rows[0].Columns())
	name, ok := rows[0].Get("name")
	s.True(ok)
	s.Equal("ann", name)
	s.Equal(map[string]any{"id": int64(1), "name": "ann"}, rows[0].Map())

	_, err = s.client.Query(s.ctx, stmt)
	s.Require().NoError(err)
	s.GreaterOrEqual(s.client.CacheStats().Hits, int64(1))
}

func (s *ClientSuite) TestUpdateWithIncrement() {
	s.insert("ann", 30)

	stmt, err := builder.New().
		Table("users").
		Where(condition.Where("name", "ann")).
		Update(builder.Row{{Key: "age", Value: condition.Inc(2)}})
	s.Require().NoError(err)
	res, err := s.client.Run(s.ctx, stmt)
	s.Require().NoError(err)
	s.Equal(int64(1), res.Changes)

	rows, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT age FROM users"})
	s.Require().NoError(err)
	s.Equal(int64(32), rows[0][0].Value)
}

func (s *ClientSuite) TestMiddlewareChain() {
	var order []string
	var events []*QueryEvent
	s.client.Use(
		func(ctx context.Context, ev *QueryEvent, next func() error) error {
			order = append(order, "outer")
			err := next()
			events = append(events, ev)
			return err
		},
		func(ctx context.Context, ev *QueryEvent, next func() error) error {
			order = append(order, "inner")
			return next()
		},
	)

	s.insert("ann", 30)
	_, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT * FROM users"})
	s.Require().NoError(err)

	s.Equal([]string{"outer", "inner", "outer", "inner"}, order)
	s.Require().Len(events, 2)
	s.Equal(KindRun, events[0].Kind)
	s.Equal(int64(1), events[0].Rows)
	s.Equal(KindQuery, events[1].Kind)
	s.Equal(int64(1), events[1].Rows)
	s.False(events[1].End.Before(events[1].Start))
}

func (s *ClientSuite) TestErrorAndTimingMiddleware() {
	var failed, timed []string
	s.client.Use(
		ErrorMiddleware(func(query string, err error) { failed = append(failed, query) }),
		TimingMiddleware(func(query string, d time.Duration) { timed = append(timed, query) }),
	)

	err := s.client.Exec(s.ctx, "SELEC 1")
	s.Error(err)
	s.Equal([]string{"SELEC 1"}, failed)
	s.Equal([]string{"SELEC 1"}, timed)
}

func (s *ClientSuite) TestLoggingMiddleware() {
	var buf bytes.Buffer
	s.client.Use(LoggingMiddleware(slog.New(slog.NewJSONHandler(&buf, nil))))

	s.insert("ann", 30)
	s.Contains(buf.String(), `"msg":"statement"`)
	s.Contains(buf.String(), "INSERT INTO `users`")

	buf.Reset()
	_, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT nope FROM users"})
	s.Error(err)
	s.Contains(buf.String(), `"msg":"statement failed"`)
}

func (s *ClientSuite) TestTracingMiddleware() {
	tp := &recordingProvider{}
	s.client.Use(TracingMiddleware(tp))

	s.insert("ann", 30)
	_, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT nope FROM users"})
	s.Error(err)

	s.Require().Len(tp.spans, 2)
	s.Equal("sqlite INSERT", tp.spans[0].name)
	s.Equal(codes.Ok, tp.spans[0].status)
	s.Equal("sqlite SELECT", tp.spans[1].name)
	s.Equal(codes.Error, tp.spans[1].status)
	s.Equal(1, tp.spans[1].errors)
}

func (s *ClientSuite) TestMetricsMiddleware() {
	mw, err := MetricsMiddleware(metricnoop.NewMeterProvider())
	s.Require().NoError(err)
	s.client.Use(mw)
	s.insert("ann", 30)
}

func (s *ClientSuite) TestTransactionCommit() {
	err := s.client.Transaction(s.ctx, func(tx *Tx) error {
		_, err := tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"ann"}})
		if err != nil {
			return err
		}
		rows, err := tx.Query(s.ctx, builder.Statement{SQL: "SELECT count(*) AS n FROM users"})
		if err != nil {
			return err
		}
		s.Equal(int64(1), rows[0][0].Value)
		return nil
	})
	s.Require().NoError(err)
	s.Equal(int64(1), s.count())
}

func (s *ClientSuite) TestTransactionRollback() {
	boom := errors.New("boom")
	err := s.client.Transaction(s.ctx, func(tx *Tx) error {
		_, err := tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"ann"}})
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(int64(0), s.count())

	s.Panics(func() {
		_ = s.client.Transaction(s.ctx, func(tx *Tx) error {
			_, _ = tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"ann"}})
			panic("kaboom")
		})
	})
	s.Equal(int64(0), s.count())
}

func (s *ClientSuite) TestNestedTransaction() {
	err := s.client.Transaction(s.ctx, func(tx *Tx) error {
		if _, err := tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES ('outer')"}); err != nil {
			return err
		}
		nestedErr := tx.Nested(s.ctx, func(tx *Tx) error {
			if _, err := tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES ('inner')"}); err != nil {
				return err
			}
			return errors.New("undo inner")
		})
		s.Error(nestedErr)
		return tx.Nested(s.ctx, func(tx *Tx) error {
			_, err := tx.Run(s.ctx, builder.Statement{SQL: "INSERT INTO users (name) VALUES ('kept')"})
			return err
		})
	})
	s.Require().NoError(err)

	rows, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT name FROM users ORDER BY id"})
	s.Require().NoError(err)
	names, err := ScanRows[struct{ Name string }](rows)
	s.Require().NoError(err)
	s.Equal([]struct{ Name string }{{"outer"}, {"kept"}}, names)
}

func (s *ClientSuite) TestClosed() {
	s.Require().NoError(s.client.Close())
	_, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT 1"})
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(s.client.Transaction(s.ctx, func(*Tx) error { return nil }), ErrClosed)
}

func (s *ClientSuite) count() int64 {
	rows, err := s.client.Query(s.ctx, builder.Statement{SQL: "SELECT count(*) FROM users"})
	s.Require().NoError(err)
	return rows[0][0].Value.(int64)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "nested", "dir", "app.db")

	c, err := Open(ctx, Config{Filename: file})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Exec(ctx, "CREATE TABLE t (x INTEGER)"))
	assert.FileExists(t, file)
	assert.Contains(t, c.Config().DSN(), "mode=rwc")
}

func TestQuery_ConcurrentWithSmallCache(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, Config{Filename: filepath.Join(t.TempDir(), "cache.db"), CacheSize: 1})
	require.NoError(t, err)
	defer c.Close()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				want := int64((g + i) % 4)
				rows, err := c.Query(ctx, builder.Statement{SQL: fmt.Sprintf("SELECT %d AS n", want)})
				if err == nil {
					if v, _ := rows[0].Get("n"); v != want {
						err = fmt.Errorf("got %v, want %d", v, want)
					}
				}
				if err != nil {
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Positive(t, c.CacheStats().Evictions)
}

func TestConfig_DSN(t *testing.T) {
	assert.Equal(t, ":memory:", Config{}.DSN())
	assert.Equal(t, "file:a.db?mode=ro&_busy_timeout=250&_foreign_keys=1",
		Config{Filename: "a.db", Mode: ModeReadOnly, BusyTimeout: 250 * time.Millisecond}.DSN())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	a, err := reg.Add(ctx, "default", Config{})
	require.NoError(t, err)
	again, err := reg.Add(ctx, "default", Config{Filename: "ignored.db"})
	require.NoError(t, err)
	assert.Same(t, a, again)

	got, err := reg.Get("default")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.Panics(t, func() { reg.MustGet("missing") })

	other, err := Open(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, reg.Register("other", other))
	assert.Error(t, reg.Register("other", other))
	assert.Equal(t, []string{"default", "other"}, reg.Names())

	require.NoError(t, reg.Remove("other"))
	assert.ErrorIs(t, reg.Remove("other"), ErrConnectionNotFound)

	require.NoError(t, reg.Close())
	assert.Empty(t, reg.Names())
	_, err = a.Query(ctx, builder.Statement{SQL: "SELECT 1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScanRows(t *testing.T) {
	type user struct {
		ID        int
		FullName  string `db:"name"`
		ParentId  *int64
		CreatedAt string
		Skipped   string `db:"-"`
	}
	rows := []Row{
		{{"id", int64(1)}, {"name", []byte("ann")}, {"parent_id", int64(7)}, {"created_at", "2024-01-01"}, {"extra", 1}},
		{{"id", int64(2)}, {"name", "bob"}, {"parent_id", nil}},
	}

	users, err := ScanRows[user](rows)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, 1, users[0].ID)
	assert.Equal(t, "ann", users[0].FullName)
	require.NotNil(t, users[0].ParentId)
	assert.Equal(t, int64(7), *users[0].ParentId)
	assert.Equal(t, "2024-01-01", users[0].CreatedAt)
	assert.Nil(t, users[1].ParentId)

	_, err = ScanRow[user](Row{{"name", int64(5)}})
	assert.Error(t, err)
}

type recordedSpan struct {
	name   string
	status codes.Code
	errors int
}

type recordingProvider struct {
	embedded.TracerProvider
	spans []*recordedSpan
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

type recordingTracer struct {
	embedded.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	rec := &recordedSpan{name: name}
	t.provider.spans = append(t.provider.spans, rec)
	ctx, span := noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
	return ctx, &recordingSpan{Span: span, rec: rec}
}

type recordingSpan struct {
	trace.Span
	rec *recordedSpan
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.rec.status = code
}

func (s *recordingSpan) RecordError(error, ...trace.EventOption) {
	s.rec.errors++
}
