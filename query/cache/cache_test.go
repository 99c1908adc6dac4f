package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func prepare(t *testing.T, c *StmtCache, query string) *sql.Stmt {
	t.Helper()
	stmt, release, err := c.Prepare(context.Background(), query)
	require.NoError(t, err)
	release()
	return stmt
}

func TestStmtCache_HitsAndEvictions(t *testing.T) {
	ctx := context.Background()
	c := New(openDB(t), 2)

	first := prepare(t, c, "SELECT 1")
	again := prepare(t, c, "SELECT 1")
	assert.Same(t, first, again)

	prepare(t, c, "SELECT 2")
	// Touch SELECT 1 so SELECT 2 is the least recently used.
	prepare(t, c, "SELECT 1")
	prepare(t, c, "SELECT 3")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.InDelta(t, 40.0, stats.HitRate, 0.001)

	// SELECT 1 survived and still works.
	var n int
	require.NoError(t, first.QueryRowContext(ctx).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStmtCache_EvictedStatementStaysOpenWhileHeld(t *testing.T) {
	ctx := context.Background()
	c := New(openDB(t), 1)

	held, release, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)

	prepare(t, c, "SELECT 2")
	assert.Equal(t, int64(1), c.Stats().Evictions)

	var n int
	require.NoError(t, held.QueryRowContext(ctx).Scan(&n))
	assert.Equal(t, 1, n)

	release()
	release()
	assert.Error(t, held.QueryRowContext(ctx).Scan(&n))
}

func TestStmtCache_ConcurrentEviction(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c := New(db, 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				want := (g + i) % 4
				stmt, release, err := c.Prepare(ctx, fmt.Sprintf("SELECT %d", want))
				if err == nil {
					var got int
					err = stmt.QueryRowContext(ctx).Scan(&got)
					if err == nil && got != want {
						err = fmt.Errorf("got %d, want %d", got, want)
					}
					release()
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
	assert.LessOrEqual(t, c.Stats().Size, 1)
}

func TestStmtCache_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	c := New(openDB(t), 4)

	stmt := prepare(t, c, "SELECT 1")
	require.NoError(t, c.Invalidate("SELECT 1"))
	assert.Equal(t, 0, c.Stats().Size)

	var n int
	assert.Error(t, stmt.QueryRowContext(ctx).Scan(&n))

	prepare(t, c, "SELECT 1")
	held, release, err := c.Prepare(ctx, "SELECT 2")
	require.NoError(t, err)
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Stats().Size)
	require.NoError(t, held.QueryRowContext(ctx).Scan(&n))
	release()
	assert.NoError(t, c.Invalidate("missing"))
}

func TestStmtCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := New(openDB(t), 0)

	a, releaseA, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	b, releaseB, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.False(t, c.Enabled())
	assert.Equal(t, 0, c.Stats().Size)

	releaseA()
	releaseB()
	var n int
	assert.Error(t, a.QueryRowContext(ctx).Scan(&n))
}

func TestStmtCache_PrepareError(t *testing.T) {
	c := New(openDB(t), 2)
	_, _, err := c.Prepare(context.Background(), "SELEC nonsense")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Stats().Size)
}
