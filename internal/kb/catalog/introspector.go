// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog introspects a live PostgreSQL schema and produces a
[types.KBSchema] snapshot: tables, columns, primary keys, foreign keys,
indexes, enum labels, and parsed check-constraint value lists.

Per-table extraction is independent, so it is fanned out with a bounded
[errgroup.Group] rather than walked table-by-table.
*/
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerql/gateway/internal/kb/types"
)

// domainKeywords buckets table names into a coarse domain tag, generalized
// from the original microfinance-specific heuristic into a configurable set
// whose shipped defaults match this system's lending-domain examples.
var domainKeywords = map[string][]string{
	"lending":   {"borrower", "loan", "repayment", "collection", "field_officer", "branch"},
	"ecommerce": {"user", "order", "product", "cart", "payment", "shipping"},
	"audit":     {"history", "audit", "log", "event"},
}

var (
	checkArrayRegex = regexp.MustCompile(`ARRAY\[([^\]]+)\]`)
	checkQuoteRegex = regexp.MustCompile(`'([^']*)'`)
	checkEqualsOrRegex = regexp.MustCompile(`=\s*'([^']+)'`)
)

// Introspector pulls catalog metadata from the metadata pool.
type Introspector struct {
	pool       *pgxpool.Pool
	schemaName string
	workers    int
}

// New constructs an Introspector bounded to schemaName, fanning per-table
// extraction out across at most workers goroutines (0 = GOMAXPROCS).
func New(pool *pgxpool.Pool, schemaName string, workers int) *Introspector {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Introspector{pool: pool, schemaName: schemaName, workers: workers}
}

// BuildKBSchema performs a full catalog snapshot. Failures on required steps
// (table enumeration, and per table its columns, primary key and foreign
// keys) abort the refresh; failures on optional extractions
// (indexes, enums, check constraints) degrade to empty values.
func (in *Introspector) BuildKBSchema(ctx context.Context) (*types.KBSchema, error) {
	tableNames, err := in.extractTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tables: %w", err)
	}

	result := &types.KBSchema{Tables: make(map[string]*types.Table, len(tableNames))}
	tables := make([]*types.Table, len(tableNames))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(in.workers)

	for i, name := range tableNames {
		i, name := i, name
		group.Go(func() error {
			table, err := in.buildTable(gctx, name)
			if err != nil {
				return fmt.Errorf("catalog: build table %s: %w", name, err)
			}
			tables[i] = table
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, t := range tables {
		result.Tables[t.Key()] = t
	}
	return result, nil
}

func (in *Introspector) buildTable(ctx context.Context, name string) (*types.Table, error) {
	columns, err := in.extractColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	pk, err := in.extractPrimaryKeys(ctx, name)
	if err != nil {
		return nil, err
	}
	fks, err := in.extractForeignKeys(ctx, name)
	if err != nil {
		return nil, err
	}

	// Optional extractions degrade to empty on error.
	indexes, _ := in.extractIndexes(ctx, name)
	checks, _ := in.extractCheckConstraints(ctx, name)
	enums, _ := in.extractEnumTypes(ctx)

	for i := range columns {
		if vals, ok := enums[columns[i].DataType]; ok {
			columns[i].EnumValues = vals
		}
	}
	enrichWithChecks(columns, checks)

	table := &types.Table{
		Schema:           in.schemaName,
		Name:             name,
		Columns:          columns,
		PrimaryKey:       pk,
		ForeignKeys:      fks,
		Indexes:          indexes,
		CheckConstraints: checks,
	}
	table.DateColumns = identifyDateColumns(columns)
	table.StatusColumns = identifyStatusColumns(columns)
	table.NaturalKeyColumns = identifyNaturalKeyCandidates(columns)
	table.Domain = inferDomain(name)
	table.Semantic = types.Semantic{
		Purpose: "unknown, needs enrichment",
		Aliases: defaultAliases(name),
		JoinPolicy: types.JoinPolicy{MaxDepth: 4},
	}
	return table, nil
}

func (in *Introspector) extractTableNames(ctx context.Context) ([]string, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, in.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (in *Introspector) extractColumns(ctx context.Context, table string) ([]types.Column, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, ''),
		       character_maximum_length, numeric_precision, numeric_scale, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []types.Column
	for rows.Next() {
		var c types.Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.Default,
			&c.CharacterMaxLength, &c.NumericPrecision, &c.NumericScale, &c.OrdinalPosition); err != nil {
			return nil, err
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (in *Introspector) extractPrimaryKeys(ctx context.Context, table string) ([]string, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		pk = append(pk, c)
	}
	return pk, rows.Err()
}

func (in *Introspector) extractForeignKeys(ctx context.Context, table string) ([]types.ForeignKey, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_schema, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2`,
		in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []types.ForeignKey
	for rows.Next() {
		fk := types.ForeignKey{Table: table}
		if err := rows.Scan(&fk.ConstraintName, &fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (in *Introspector) extractIndexes(ctx context.Context, table string) ([]types.Index, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT ic.relname AS index_name, array_agg(a.attname ORDER BY array_position(i.indkey, a.attnum)),
		       i.indisunique, i.indisprimary
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_class tc ON tc.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1 AND tc.relname = $2
		GROUP BY ic.relname, i.indisunique, i.indisprimary`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idxs []types.Index
	for rows.Next() {
		idx := types.Index{Table: table}
		if err := rows.Scan(&idx.Name, &idx.Columns, &idx.IsUnique, &idx.IsPrimary); err != nil {
			return nil, err
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

func (in *Introspector) extractCheckConstraints(ctx context.Context, table string) ([]string, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.constraint_table_usage ctu
		  ON cc.constraint_name = ctu.constraint_name AND cc.constraint_schema = ctu.constraint_schema
		WHERE ctu.table_schema = $1 AND ctu.table_name = $2`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clauses []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, rows.Err()
}

// extractEnumTypes returns a map of pg enum type name -> ordered label list.
func (in *Introspector) extractEnumTypes(ctx context.Context) (map[string][]string, error) {
	rows, err := in.pool.Query(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		ORDER BY t.typname, e.enumsortorder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var typName, label string
		if err := rows.Scan(&typName, &label); err != nil {
			return nil, err
		}
		out[typName] = append(out[typName], label)
	}
	return out, rows.Err()
}

// enrichWithChecks parses check-constraint clauses referencing a column into
// an allowed-value list attached to that column, per the two recognized
// forms: `col = ANY(ARRAY['a','b'])` and `col = 'a' OR col = 'b'`.
func enrichWithChecks(columns []types.Column, clauses []string) {
	for i := range columns {
		col := &columns[i]
		for _, clause := range clauses {
			if !strings.Contains(clause, col.Name) {
				continue
			}
			if vals := parseCheckConstraintValues(clause); len(vals) > 0 {
				col.CheckConstraintValues = vals
			}
		}
	}
}

func parseCheckConstraintValues(clause string) []string {
	if m := checkArrayRegex.FindStringSubmatch(clause); m != nil {
		var vals []string
		for _, q := range checkQuoteRegex.FindAllStringSubmatch(m[1], -1) {
			vals = append(vals, q[1])
		}
		if len(vals) > 0 {
			return vals
		}
	}
	var vals []string
	for _, q := range checkEqualsOrRegex.FindAllStringSubmatch(clause, -1) {
		vals = append(vals, q[1])
	}
	return vals
}

var dateTypes = map[string]bool{
	"date": true, "timestamp": true, "timestamptz": true,
	"timestamp with time zone": true, "timestamp without time zone": true,
}

func identifyDateColumns(cols []types.Column) []string {
	var out []string
	for _, c := range cols {
		if dateTypes[strings.ToLower(c.DataType)] {
			out = append(out, c.Name)
		}
	}
	return out
}

var statusNameFragments = []string{"status", "state", "type", "stage", "phase"}
var textLikeTypes = map[string]bool{
	"character varying": true, "varchar": true, "text": true, "char": true, "user-defined": true,
}

func identifyStatusColumns(cols []types.Column) []string {
	var out []string
	for _, c := range cols {
		if !textLikeTypes[strings.ToLower(c.DataType)] {
			continue
		}
		lower := strings.ToLower(c.Name)
		for _, frag := range statusNameFragments {
			if strings.Contains(lower, frag) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

var naturalKeyFragments = []string{"number", "code", "name", "email", "username"}

func identifyNaturalKeyCandidates(cols []types.Column) []string {
	var out []string
	for _, c := range cols {
		if !textLikeTypes[strings.ToLower(c.DataType)] {
			continue
		}
		lower := strings.ToLower(c.Name)
		if strings.HasSuffix(lower, "_id") {
			continue
		}
		for _, frag := range naturalKeyFragments {
			if strings.Contains(lower, frag) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

func inferDomain(table string) string {
	lower := strings.ToLower(table)
	// Deterministic bucket order: iterate sorted bucket names rather than a
	// Go map range so inference never flips between refreshes.
	buckets := make([]string, 0, len(domainKeywords))
	for k := range domainKeywords {
		buckets = append(buckets, k)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		for _, kw := range domainKeywords[bucket] {
			if strings.Contains(lower, kw) {
				return bucket
			}
		}
	}
	return "general"
}

func defaultAliases(table string) []string {
	aliases := map[string]struct{}{
		table:                           {},
		strings.ReplaceAll(table, "_", " "): {},
	}
	if strings.HasSuffix(table, "s") {
		aliases[strings.TrimSuffix(table, "s")] = struct{}{}
	} else {
		aliases[table+"s"] = struct{}{}
	}
	out := make([]string, 0, len(aliases))
	for a := range aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
