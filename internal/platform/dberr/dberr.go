// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerql/gateway/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}

// SanitizeExecutionError maps a raw execution-time error into one of a fixed
// set of user-facing messages, mirroring the four-way classification the
// Safe Executor applies before a result ever reaches the client. Never
// returns raw driver text.
func SanitizeExecutionError(err error) string {
	if err == nil {
		return ""
	}
	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "canceling statement"):
		return "Query execution time limit exceeded. Try adding more filters to reduce result size."
	case strings.Contains(lower, "connection"):
		return "Database connection error. Please try again."
	case strings.Contains(lower, "syntax"):
		return "SQL syntax error. Please rephrase your question."
	default:
		return "An error occurred while executing the query. Please try rephrasing your question."
	}
}
