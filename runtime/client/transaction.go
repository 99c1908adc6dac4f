package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satishbabariya/liteorm/query/builder"
)

// Tx is a transaction exposing the Executor surface. Statements run on the
// transaction's connection and pass through the client's middleware.
type Tx struct {
	tx          *sql.Tx
	middlewares []Middleware
	depth       int
}

// TransactionFunc is a function that runs within a transaction
type TransactionFunc func(tx *Tx) error

// Transaction runs fn inside BEGIN/COMMIT. The transaction is rolled back
// when fn returns an error or panics; the panic is re-raised afterwards.
//
// An in-memory database has a single connection, so fn must use tx rather
// than the client for every statement.
func (c *Client) Transaction(ctx context.Context, fn TransactionFunc) error {
	return c.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions is Transaction with explicit options.
func (c *Client) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) (err error) {
	mws, err := c.chain()
	if err != nil {
		return err
	}
	sqlTx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, middlewares: mws}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query runs a SELECT inside the transaction.
func (tx *Tx) Query(ctx context.Context, stmt builder.Statement) ([]Row, error) {
	var rows []Row
	err := execute(ctx, tx.middlewares, KindQuery, stmt, func(ev *QueryEvent) error {
		var err error
		rows, err = queryRows(ctx, tx.tx, stmt)
		ev.Rows = int64(len(rows))
		return err
	})
	return rows, err
}

// Run executes a write statement inside the transaction.
func (tx *Tx) Run(ctx context.Context, stmt builder.Statement) (RunResult, error) {
	var res RunResult
	err := execute(ctx, tx.middlewares, KindRun, stmt, func(ev *QueryEvent) error {
		r, err := tx.tx.ExecContext(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			return err
		}
		res, err = runResult(r)
		ev.Rows = res.Changes
		return err
	})
	return res, err
}

// Exec runs parameterless statements inside the transaction.
func (tx *Tx) Exec(ctx context.Context, query string) error {
	return execute(ctx, tx.middlewares, KindExec, builder.Statement{SQL: query}, func(*QueryEvent) error {
		_, err := tx.tx.ExecContext(ctx, query)
		return err
	})
}

// Nested runs fn inside a savepoint. An error or panic rolls back to the
// savepoint and leaves the outer transaction usable.
func (tx *Tx) Nested(ctx context.Context, fn TransactionFunc) error {
	tx.depth++
	defer func() { tx.depth-- }()
	savepoint := fmt.Sprintf("sp_%d", tx.depth)

	if err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return fmt.Errorf("nested transaction error: %v, rollback error: %w", err, rbErr)
		}
		// ROLLBACK TO keeps the savepoint open.
		_ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint)
		return err
	}
	if err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
