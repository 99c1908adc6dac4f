// Package client provides the SQLite runtime client.
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/query/builder"
	"github.com/satishbabariya/liteorm/query/cache"
)

// DriverName is the database/sql driver used by Open.
const DriverName = "sqlite3"

// DefaultCacheSize is the number of prepared statements kept per client.
const DefaultCacheSize = 64

// ErrClosed is returned when a closed client is used.
var ErrClosed = errors.New("client: closed")

// Mode is the SQLite open mode.
type Mode string

const (
	ModeReadWriteCreate Mode = "rwc"
	ModeReadWrite       Mode = "rw"
	ModeReadOnly        Mode = "ro"
)

// Config describes a database connection.
type Config struct {
	// Filename is the database file. Empty or ":memory:" opens a private
	// in-memory database.
	Filename string
	// Mode defaults to ModeReadWriteCreate.
	Mode Mode
	// BusyTimeout is how long a locked database is retried. Defaults to 5s.
	BusyTimeout time.Duration
	// CacheSize bounds the prepared statement cache. Zero selects
	// DefaultCacheSize; a negative value disables caching.
	CacheSize int
}

// InMemory reports whether cfg describes an in-memory database.
func (cfg Config) InMemory() bool {
	return cfg.Filename == "" || cfg.Filename == ":memory:"
}

// DSN returns the go-sqlite3 data source name.
func (cfg Config) DSN() string {
	if cfg.InMemory() {
		return ":memory:"
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeReadWriteCreate
	}
	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?mode=%s&_busy_timeout=%d&_foreign_keys=1", cfg.Filename, mode, timeout.Milliseconds())
}

// Row is one result row with columns in select order.
type Row []Field

// Field is one column of a Row.
type Field struct {
	Name  string
	Value any
}

// Get returns the value of column name.
func (r Row) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Name
	}
	return cols
}

// Map returns the row as a map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// RunResult reports the effect of a write statement.
type RunResult struct {
	Changes      int64
	LastInsertID int64
}

// Executor runs statements. *Client and *Tx implement it.
type Executor interface {
	Query(ctx context.Context, stmt builder.Statement) ([]Row, error)
	Run(ctx context.Context, stmt builder.Statement) (RunResult, error)
	Exec(ctx context.Context, query string) error
}

// Client is a SQLite connection pool with a statement cache and a
// middleware chain.
type Client struct {
	db    *sql.DB
	cfg   Config
	stmts *cache.StmtCache

	mu          sync.RWMutex
	middlewares []Middleware
	closed      bool
}

// Open opens the database described by cfg. The parent directory of a file
// database is created when missing.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.InMemory() {
		if dir := filepath.Dir(cfg.Filename); dir != "" && cfg.Mode != ModeReadOnly {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Filename, err)
	}
	if cfg.InMemory() {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Filename, err)
	}
	debug.Debug("database opened", "file", cfg.Filename, "mode", cfg.Mode)
	return NewFromDB(db, cfg), nil
}

// NewFromDB wraps an existing database handle.
func NewFromDB(db *sql.DB, cfg Config) *Client {
	size := cfg.CacheSize
	switch {
	case size == 0:
		size = DefaultCacheSize
	case size < 0:
		size = 0
	}
	return &Client{db: db, cfg: cfg, stmts: cache.New(db, size)}
}

// DB returns the underlying database handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Config returns the configuration the client was opened with.
func (c *Client) Config() Config {
	return c.cfg
}

// CacheStats returns prepared statement cache statistics.
func (c *Client) CacheStats() cache.Stats {
	return c.stmts.Stats()
}

// Use appends middleware to the chain.
func (c *Client) Use(mw ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, mw...)
}

func (c *Client) chain() ([]Middleware, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.middlewares, nil
}

// Query runs a SELECT and returns every row.
func (c *Client) Query(ctx context.Context, stmt builder.Statement) ([]Row, error) {
	mws, err := c.chain()
	if err != nil {
		return nil, err
	}
	var rows []Row
	err = execute(ctx, mws, KindQuery, stmt, func(ev *QueryEvent) error {
		prepared, release, err := c.prepare(ctx, stmt.SQL)
		if err != nil {
			return err
		}
		defer release()
		rs, err := prepared.QueryContext(ctx, stmt.Params...)
		if err != nil {
			return err
		}
		rows, err = scanRows(rs)
		ev.Rows = int64(len(rows))
		return err
	})
	return rows, err
}

// Run executes a write statement.
func (c *Client) Run(ctx context.Context, stmt builder.Statement) (RunResult, error) {
	mws, err := c.chain()
	if err != nil {
		return RunResult{}, err
	}
	var res RunResult
	err = execute(ctx, mws, KindRun, stmt, func(ev *QueryEvent) error {
		prepared, release, err := c.prepare(ctx, stmt.SQL)
		if err != nil {
			return err
		}
		defer release()
		r, err := prepared.ExecContext(ctx, stmt.Params...)
		if err != nil {
			return err
		}
		res, err = runResult(r)
		ev.Rows = res.Changes
		return err
	})
	return res, err
}

// Exec runs one or more statements without parameters, typically DDL.
func (c *Client) Exec(ctx context.Context, query string) error {
	mws, err := c.chain()
	if err != nil {
		return err
	}
	return execute(ctx, mws, KindExec, builder.Statement{SQL: query}, func(*QueryEvent) error {
		_, err := c.db.ExecContext(ctx, query)
		return err
	})
}

// prepare returns a statement for query and the func that releases it.
func (c *Client) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	return c.stmts.Prepare(ctx, query)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases cached statements and closes the database.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return errors.Join(c.stmts.Clear(), c.db.Close())
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanRows(rs *sql.Rows) ([]Row, error) {
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, name := range cols {
			row[i] = Field{Name: name, Value: values[i]}
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

func runResult(r sql.Result) (RunResult, error) {
	changes, err := r.RowsAffected()
	if err != nil {
		return RunResult{}, err
	}
	// SQLite reports the connection's last rowid even for UPDATE and DELETE.
	id, err := r.LastInsertId()
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Changes: changes, LastInsertID: id}, nil
}

func queryRows(ctx context.Context, q queryer, stmt builder.Statement) ([]Row, error) {
	rs, err := q.QueryContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, err
	}
	return scanRows(rs)
}

// sqlKeyword returns the leading keyword of query, upper-cased.
func sqlKeyword(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
