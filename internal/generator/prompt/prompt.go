// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package prompt assembles the single grounded prompt the LLM SQL generator
sends to the model: schema section, FK edge list, enum/date/natural-key
metadata, resolved-context and clarification blocks, and the generation
rules. The LLM acts purely as a SQL compiler here — every context decision
(continuation type, preserved dimensions, refinement instruction) is made
upstream by the context resolver and handed in as plain data.
*/
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/retrieval"
)

const maxFKEdgesShown = 30
const maxColumnsShown = 15
const maxFKsPerTableShown = 5

// Input gathers everything the prompt needs beyond the retrieved KB slice.
type Input struct {
	Question            string
	SchemaName          string
	KBContext           *retrieval.Context
	ResolvedContext     *convo.ResolvedContext
	ClarificationAnswer string
	PartialIntent       map[string]any
}

// Build assembles the final prompt text sent to the model.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString("You are a PostgreSQL SQL generator. Convert natural language to safe, read-only SQL.\n\n")
	b.WriteString(resolvedContextBlock(in.Question, in.ResolvedContext))
	b.WriteString("\n## SCHEMA\n")
	b.WriteString(schemaSection(in.KBContext))
	b.WriteString("\n\n## FK RELATIONSHIPS (CRITICAL - JOINS MUST USE ONLY THESE)\n")
	b.WriteString(fkEdgesText(in.KBContext))
	b.WriteString("\n\n## ENUM COLUMNS (use exact values)\n")
	b.WriteString(enumColumnsText(in.KBContext))
	b.WriteString("\n\n## DATE COLUMNS (for time filtering)\n")
	b.WriteString(dateColumnsText(in.KBContext))
	b.WriteString("\n\n## NATURAL KEYS (for filtering)\n")
	b.WriteString(naturalKeyText(in.KBContext))
	b.WriteString("\n\n---\n\n## GENERATION RULES\n\n")
	b.WriteString(generationRules(in.SchemaName, in.KBContext))
	b.WriteString(clarificationBlock(in.ClarificationAnswer, in.PartialIntent))
	b.WriteString(fmt.Sprintf("\nQUESTION:\n%q\n\n", in.Question))
	b.WriteString(responseSchema(in.SchemaName))

	return b.String()
}

func schemaSection(kb *retrieval.Context) string {
	if kb == nil || len(kb.Tables) == 0 {
		return "(no tables retrieved)"
	}
	names := make([]string, 0, len(kb.Tables))
	for k := range kb.Tables {
		names = append(names, k)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		table := kb.Tables[name]
		lines = append(lines, "\nTable: "+name)

		columns := table.Columns
		if len(columns) > maxColumnsShown {
			columns = columns[:maxColumnsShown]
		}
		var colParts []string
		for _, c := range columns {
			if c.Name == "" || c.DataType == "" {
				continue
			}
			colParts = append(colParts, c.Name+":"+c.DataType)
		}
		if len(colParts) > 0 {
			lines = append(lines, "Columns: "+strings.Join(colParts, ", "))
		} else {
			lines = append(lines, "Columns: (unavailable)")
		}

		if len(table.PrimaryKey) > 0 {
			lines = append(lines, "PK: "+strings.Join(table.PrimaryKey, ", "))
		}

		fks := table.ForeignKeys
		if len(fks) > maxFKsPerTableShown {
			fks = fks[:maxFKsPerTableShown]
		}
		for _, fk := range fks {
			if fk.Column == "" || fk.ReferencedTable == "" || fk.ReferencedColumn == "" {
				continue
			}
			refSchema := fk.ReferencedSchema
			if refSchema == "" {
				refSchema = table.Schema
			}
			lines = append(lines, fmt.Sprintf("FK: %s -> %s.%s.%s", fk.Column, refSchema, fk.ReferencedTable, fk.ReferencedColumn))
		}
	}
	return strings.Join(lines, "\n")
}

func fkEdgesText(kb *retrieval.Context) string {
	if kb == nil || len(kb.FKEdges) == 0 {
		return "No FK relationships defined."
	}
	edges := kb.FKEdges
	if len(edges) > maxFKEdgesShown {
		edges = edges[:maxFKEdgesShown]
	}
	var lines []string
	for _, e := range edges {
		if e.FromTable == "" || e.FromColumn == "" || e.ToTable == "" || e.ToColumn == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s.%s = %s.%s", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn))
	}
	if len(lines) == 0 {
		return "No FK relationships defined."
	}
	return strings.Join(lines, "\n")
}

func enumColumnsText(kb *retrieval.Context) string {
	if kb == nil {
		return "No enum/constrained columns."
	}
	var lines []string
	for _, name := range sortedTableNames(kb) {
		table := kb.Tables[name]
		for _, c := range table.Columns {
			if c.Name == "" {
				continue
			}
			if len(c.EnumValues) > 0 {
				lines = append(lines, fmt.Sprintf("%s.%s: %s", name, c.Name, strings.Join(c.EnumValues, ", ")))
			}
			if len(c.CheckConstraintValues) > 0 {
				lines = append(lines, fmt.Sprintf("%s.%s: %s", name, c.Name, strings.Join(c.CheckConstraintValues, ", ")))
			}
		}
	}
	if len(lines) == 0 {
		return "No enum/constrained columns."
	}
	return strings.Join(lines, "\n")
}

func dateColumnsText(kb *retrieval.Context) string {
	if kb == nil {
		return "No date/timestamp columns identified."
	}
	var lines []string
	for _, name := range sortedTableNames(kb) {
		table := kb.Tables[name]
		if len(table.DateColumns) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(table.DateColumns, ", ")))
		}
	}
	if len(lines) == 0 {
		return "No date/timestamp columns identified."
	}
	return strings.Join(lines, "\n")
}

func naturalKeyText(kb *retrieval.Context) string {
	if kb == nil {
		return "No natural key columns identified."
	}
	var lines []string
	for _, name := range sortedTableNames(kb) {
		table := kb.Tables[name]
		if len(table.NaturalKeyColumns) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(table.NaturalKeyColumns, ", ")))
		}
	}
	if len(lines) == 0 {
		return "No natural key columns identified."
	}
	return strings.Join(lines, "\n")
}

func sortedTableNames(kb *retrieval.Context) []string {
	names := make([]string, 0, len(kb.Tables))
	for k := range kb.Tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func generationRules(schemaName string, kb *retrieval.Context) string {
	defaultLimit, maxLimit := 20, 100
	if kb != nil {
		defaultLimit = kb.QueryPolicies.DefaultLimit
		maxLimit = kb.QueryPolicies.MaxLimit
	}
	return fmt.Sprintf(`1. **Schema**: Always use `+"`%s.table_name`"+` (even in subqueries)
2. **READ-ONLY**: Only SELECT queries. No INSERT/UPDATE/DELETE/DDL
3. **JOINS**: MUST use FK relationships above. Never join on name-matching columns
4. **TEXT**: ENUM columns use exact values. Other text use `+"`lower(col) = lower('val')`"+`
5. **TIME**: If time is mentioned, MUST include a WHERE clause on a date column
6. **LIMIT**: Always include (default %d, max %d)
`, schemaName, defaultLimit, maxLimit)
}

func resolvedContextBlock(question string, rc *convo.ResolvedContext) string {
	if rc == nil || !rc.IsRelated {
		return ""
	}

	var b strings.Builder
	b.WriteString("## RESOLVED CONTEXT (DO NOT CHANGE UNLESS USER EXPLICITLY ASKS)\n")
	b.WriteString("Continuation type: " + string(rc.ContinuationType) + "\n")

	if rc.AnchorTurn != nil {
		b.WriteString(fmt.Sprintf("\nPrevious question: %q\nPrevious SQL: %s\n\n", rc.AnchorTurn.Question, rc.AnchorTurn.SQL))
	}

	b.WriteString("Preserved dimensions:\n")
	dims := rc.PreservedDimensions
	if dims.Subject != nil {
		b.WriteString("- Subject: " + *dims.Subject + "\n")
	}
	if dims.Metric != nil {
		b.WriteString("- Metric: " + *dims.Metric + "\n")
	}
	if dims.TimeWindow != nil {
		b.WriteString("- Time window: " + *dims.TimeWindow + "\n")
	}
	if len(dims.Grouping) > 0 {
		b.WriteString("- Grouping: " + strings.Join(dims.Grouping, ", ") + "\n")
	}
	if dims.Ordering != nil {
		b.WriteString(fmt.Sprintf("- Ordering: %s %s\n", dims.Ordering.Column, dims.Ordering.Direction))
	}
	if dims.Limit != nil {
		b.WriteString(fmt.Sprintf("- Limit: %d\n", *dims.Limit))
	}
	if len(dims.Tables) > 0 {
		b.WriteString("- Tables: " + strings.Join(dims.Tables, ", ") + "\n")
	}

	if rc.RefinementInstruction != "" {
		b.WriteString("\nRefinement: " + rc.RefinementInstruction + "\n")
	}

	switch rc.ContinuationType {
	case convo.ContinuationDrilldown:
		b.WriteString("\n**CRITICAL: Use a CTE (WITH clause) to preserve the exact previous result scope**\n")
		b.WriteString("```sql\nWITH previous_results AS (\n  -- Copy the previous SQL here exactly\n)\nSELECT pr.*, new_columns\nFROM previous_results pr\nJOIN other_table ot ON pr.id = ot.entity_id\nWHERE ...\n```\n")
	case convo.ContinuationRefine:
		b.WriteString(fmt.Sprintf(`
CRITICAL INSTRUCTION - FOLLOW EXACTLY OR RESPONSE WILL BE REJECTED:

USER REQUEST: %q
REFINEMENT TYPE: %s

YOU MUST:
1. Take the "Previous SQL" shown above
2. Modify ONLY the element specified by refinement type
3. Preserve everything else EXACTLY (same tables, same aggregations, same JOINs)

FORBIDDEN:
- Do not create a new query from scratch
- Do not change the subject/tables unless the user explicitly asks
- Do not remove existing aggregations
`, question, rc.RefinementInstruction))
	}

	return b.String()
}

func clarificationBlock(answer string, partialIntent map[string]any) string {
	if answer == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\nUser clarification: %q\n", answer))
	if len(partialIntent) > 0 {
		var parts []string
		keys := make([]string, 0, len(partialIntent))
		for k := range partialIntent {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, partialIntent[k]))
		}
		b.WriteString("Partial intent: " + strings.Join(parts, ", ") + "\n")
	}
	b.WriteString("\nCRITICAL: You MUST incorporate this clarification answer into your SQL.\n")
	return b.String()
}

func responseSchema(schemaName string) string {
	return fmt.Sprintf(`Respond ONLY with JSON:
{
  "sql": "SELECT ...",
  "confidence": 0.0,
  "tables_used": ["%s.table"],
  "intent_summary": {
    "subject": "",
    "metric": "",
    "time_window": null,
    "grouping": [],
    "ordering": null,
    "limit": null,
    "tables": []
  }
}

SQL:
`, schemaName)
}
