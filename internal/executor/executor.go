// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package executor runs a validated, read-only SELECT against the query pool
inside an explicit read-only transaction, converts the result set to plain
row maps, and sanitizes any failure before it ever reaches a caller.
*/
package executor

import (
	stdctx "context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerql/gateway/internal/platform/dberr"
)

// Result is the outcome of one executed query.
type Result struct {
	Rows            []map[string]any
	RowCount        int
	ExecutionTimeMS int64
}

// Executor runs validated SQL against a dedicated read-only query pool.
type Executor struct {
	pool *pgxpool.Pool
}

// New constructs an Executor bound to pool, which must be the gateway's
// query pool (never the metadata pool).
func New(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute runs sql, already validated and LIMIT-bounded by the validator,
// inside a fresh read-only transaction with a per-statement timeout. Any
// failure is returned with a sanitized, user-facing message; the raw error
// is never surfaced to the caller.
func (e *Executor) Execute(ctx stdctx.Context, sql string, timeoutSeconds int) (*Result, error) {
	started := time.Now()

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutSeconds*1000)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}

	collected, err := collectRows(rows)
	rows.Close()
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s", dberr.SanitizeExecutionError(err))
	}

	return &Result{
		Rows:            collected,
		RowCount:        len(collected),
		ExecutionTimeMS: time.Since(started).Milliseconds(),
	}, nil
}

// collectRows converts every row into a field-name keyed map, preserving
// Postgres's native Go type mapping (pgx already decodes numerics, times,
// etc. into idiomatic Go values).
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	var out []map[string]any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
