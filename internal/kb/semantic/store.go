// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package semantic loads and merges the human-authored semantic enrichment
block (kb_semantic.json) onto a fresh catalog snapshot. Existing entries
survive refreshes verbatim; new tables get a conservative default entry.
*/
package semantic

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/ledgerql/gateway/internal/kb/types"
)

// Store loads the previous semantic artifact and merges it onto a schema.
type Store struct {
	path string
}

// New returns a Store that persists at the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// document is the on-disk shape, tolerant of either a bare list or a
// {"tables": [...]} wrapper, matching the original source's load behavior.
type document struct {
	Tables []entry `json:"tables"`
}

type entry struct {
	Key      string         `json:"key"`
	Semantic types.Semantic `json:"semantic"`
}

// Load reads the previous semantic document from disk. A missing file is
// not an error — it yields an empty document, since enrichment defaults
// will be generated for every table on first compile.
func (s *Store) Load() (map[string]types.Semantic, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]types.Semantic{}, nil
		}
		return nil, err
	}

	// Tolerate a bare list as well as the wrapped document.
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		var list []entry
		if err2 := json.Unmarshal(data, &list); err2 != nil {
			return nil, err
		}
		doc.Tables = list
	}

	out := make(map[string]types.Semantic, len(doc.Tables))
	for _, e := range doc.Tables {
		out[e.Key] = e.Semantic
	}
	return out, nil
}

// Merge preserves existing semantic entries for tables present in schema,
// and inserts a default entry for every table schema introduces that the
// previous document had no record of. Tables that vanished from schema are
// dropped from the result.
func Merge(schema *types.KBSchema, previous map[string]types.Semantic) {
	keys := make([]string, 0, len(schema.Tables))
	for k := range schema.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		table := schema.Tables[key]
		if prior, ok := previous[key]; ok {
			table.Semantic = prior
			continue
		}
		table.Semantic = defaultSemantic(table.Name)
	}
}

// Save serializes the current per-table semantic blocks, writing to a temp
// path and renaming into place so a crash mid-write never corrupts the
// previously published document.
func (s *Store) Save(schema *types.KBSchema) error {
	keys := make([]string, 0, len(schema.Tables))
	for k := range schema.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := document{Tables: make([]entry, 0, len(keys))}
	for _, k := range keys {
		doc.Tables = append(doc.Tables, entry{Key: k, Semantic: schema.Tables[k].Semantic})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tempPath := s.path + "_temp.json"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.path)
}

func defaultSemantic(tableName string) types.Semantic {
	aliasSet := map[string]struct{}{
		tableName: {},
		strings.ReplaceAll(tableName, "_", " "): {},
	}
	if strings.HasSuffix(tableName, "s") {
		aliasSet[strings.TrimSuffix(tableName, "s")] = struct{}{}
	} else {
		aliasSet[tableName+"s"] = struct{}{}
	}
	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	return types.Semantic{
		Purpose: "unknown, needs enrichment",
		Aliases: aliases,
		JoinPolicy: types.JoinPolicy{
			MaxDepth:     4,
			BlockedPaths: []string{},
		},
	}
}
