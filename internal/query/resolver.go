package query

import (
	"regexp"
	"strings"

	"cryomcp/internal/catalog"
)

// tableRefRe finds identifiers immediately following FROM or JOIN. This is
// heuristic name discovery over an un-parsed query string, not a SQL parser;
// quoted file paths and subqueries fall through by construction.
var tableRefRe = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// sqlKeywords are clause keywords that can trail FROM in malformed or
// unusual queries and must never be treated as table names.
var sqlKeywords = map[string]bool{
	"where":  true,
	"select": true,
	"group":  true,
	"order":  true,
	"having": true,
	"limit":  true,
	"offset": true,
}

// ExtractTables returns every candidate logical table name referenced by the
// query, in order of appearance, keyword-filtered.
func ExtractTables(sqlQuery string) []string {
	matches := tableRefRe.FindAllStringSubmatch(sqlQuery, -1)
	var tables []string
	for _, m := range matches {
		if !sqlKeywords[strings.ToLower(m[1])] {
			tables = append(tables, m[1])
		}
	}
	return tables
}

// ExtractDataset returns the first logical table name in the query, used to
// infer which dataset a combined fetch+query call should fetch. Empty when
// no name could be determined.
func ExtractDataset(sqlQuery string) string {
	tables := ExtractTables(sqlQuery)
	if len(tables) == 0 {
		return ""
	}
	return tables[0]
}

// Mapping records which physical files back one logical table and whether
// more than one file was fused.
type Mapping struct {
	Files    []string `json:"files"`
	Combined bool     `json:"combined"`
}

// ResolveViews binds each logical table the query references to its matching
// files from pool, registering one view per name. Names the query already
// reads through the engine's native read_parquet call are left alone, and
// names with no matching files are skipped silently: if the reference was
// real, the engine reports it at execution time, which is the failure the
// caller should see. Returns the provenance map for every view registered.
func (s *Session) ResolveViews(sqlQuery string, pool []string) (map[string]Mapping, error) {
	lowerQuery := strings.ToLower(sqlQuery)
	usesReadParquet := strings.Contains(lowerQuery, "read_parquet")

	mappings := make(map[string]Mapping)
	for _, table := range ExtractTables(sqlQuery) {
		if usesReadParquet && strings.Contains(lowerQuery, strings.ToLower(table)) {
			continue
		}

		files := catalog.MatchFiles(table, pool)
		if len(files) == 0 {
			continue
		}

		if err := s.registerView(table, files); err != nil {
			return nil, err
		}
		s.logger.Debug("Registered view", "table", table, "files", len(files), "combined", len(files) > 1)
		mappings[table] = Mapping{Files: files, Combined: len(files) > 1}
	}
	return mappings, nil
}
