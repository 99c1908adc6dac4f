// Package cache keeps prepared statements keyed by their SQL text.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Preparer prepares statements. *sql.DB and *sql.Conn satisfy it.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

// StmtCache is an LRU cache of prepared statements. Every statement handed
// out by Prepare is pinned until its release func runs; an evicted or
// invalidated statement is closed once nothing holds it.
type StmtCache struct {
	mu      sync.Mutex
	db      Preparer
	data    map[string]*cacheNode
	maxSize int
	head    *cacheNode
	tail    *cacheNode
	stats   Stats
}

// cacheNode represents a node in the doubly-linked list for LRU
type cacheNode struct {
	query string
	stmt  *sql.Stmt
	// refs counts outstanding Prepare callers.
	refs    int
	retired bool
	prev    *cacheNode
	next    *cacheNode
}

// New creates a cache holding at most maxSize statements prepared on db.
// A maxSize below one disables caching: Prepare always prepares afresh and
// release closes the statement.
func New(db Preparer, maxSize int) *StmtCache {
	return &StmtCache{
		db:      db,
		data:    make(map[string]*cacheNode),
		maxSize: maxSize,
		stats:   Stats{MaxSize: maxSize},
	}
}

// Enabled reports whether statements are retained.
func (c *StmtCache) Enabled() bool {
	return c.maxSize > 0
}

// Prepare returns the statement for query, preparing it on a miss, and a
// release func the caller must run once it is done with the statement.
func (c *StmtCache) Prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	c.mu.Lock()
	if node, ok := c.data[query]; ok {
		c.moveToFront(node)
		c.stats.Hits++
		node.refs++
		c.mu.Unlock()
		return node.stmt, c.releaser(node), nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if !c.Enabled() {
		return stmt, func() { _ = stmt.Close() }, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have prepared the same text meanwhile.
	if node, ok := c.data[query]; ok {
		_ = stmt.Close()
		c.moveToFront(node)
		node.refs++
		return node.stmt, c.releaser(node), nil
	}
	if len(c.data) >= c.maxSize {
		c.evictLRU()
	}
	node := &cacheNode{query: query, stmt: stmt, refs: 1}
	c.addToFront(node)
	c.data[query] = node
	return stmt, c.releaser(node), nil
}

func (c *StmtCache) releaser(node *cacheNode) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			node.refs--
			if node.retired && node.refs == 0 {
				_ = node.stmt.Close()
			}
		})
	}
}

// retire drops node from the cache and closes its statement unless a
// caller still holds it.
func (c *StmtCache) retire(node *cacheNode) error {
	c.removeNode(node)
	node.retired = true
	if node.refs > 0 {
		return nil
	}
	return node.stmt.Close()
}

// Invalidate drops the statement for query.
func (c *StmtCache) Invalidate(query string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.data[query]
	if !ok {
		return nil
	}
	return c.retire(node)
}

// Clear drops every cached statement.
func (c *StmtCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for c.head != nil {
		if err := c.retire(c.head); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns cache statistics.
func (c *StmtCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.data)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

func (c *StmtCache) addToFront(node *cacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *StmtCache) moveToFront(node *cacheNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToFront(node)
	c.data[node.query] = node
}

func (c *StmtCache) removeNode(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev, node.next = nil, nil
	delete(c.data, node.query)
}

func (c *StmtCache) evictLRU() {
	if c.tail == nil {
		return
	}
	_ = c.retire(c.tail)
	c.stats.Evictions++
}
