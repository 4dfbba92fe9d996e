package query

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"cryomcp/internal/catalog"
	"cryomcp/internal/errors"
)

// Executor runs ad-hoc SQL against the materialized file pool under one
// data root. Each execution gets a fresh session.
type Executor struct {
	dataDir string
	limits  Limits
	logger  *slog.Logger
}

// NewExecutor creates an executor over dataDir.
func NewExecutor(dataDir string, limits Limits, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{dataDir: dataDir, limits: limits, logger: logger}
}

// Result is a successful query execution.
type Result struct {
	Success              bool                     `json:"success"`
	Rows                 []map[string]interface{} `json:"result"`
	RowCount             int                      `json:"row_count"`
	Schema               *Schema                  `json:"schema,omitempty"`
	FilesUsed            []string                 `json:"files_used"`
	UsedDirectReferences bool                     `json:"used_direct_references"`
	TableMappings        map[string]Mapping       `json:"table_mappings,omitempty"`
}

// Execute runs one query. files narrows the candidate pool to explicit
// paths; empty means every parquet file under the data root. An empty pool
// is a precondition failure reported before any engine work; engine failures
// carry the pool that was visible so the caller can tell bad SQL from
// missing data.
func (e *Executor) Execute(ctx context.Context, sqlQuery string, files []string, includeSchema bool) (*Result, error) {
	pool, err := e.candidatePool(files)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, errors.New(errors.NoFilesAvailable,
			"no parquet files available, download data first with query_dataset", nil)
	}

	session, err := NewSession(e.limits, e.logger)
	if err != nil {
		return nil, errors.NewQueryError(err.Error(), pool, err)
	}
	defer session.Close()

	mappings, err := session.ResolveViews(sqlQuery, pool)
	if err != nil {
		return nil, errors.NewQueryError(err.Error(), pool, err)
	}

	e.logger.Info("Executing SQL query", "query", sqlQuery)
	rows, schema, err := session.queryRows(ctx, sqlQuery)
	if err != nil {
		return nil, errors.NewQueryError(err.Error(), pool, err)
	}

	result := &Result{
		Success:              true,
		Rows:                 rows,
		RowCount:             len(rows),
		FilesUsed:            pool,
		UsedDirectReferences: len(mappings) > 0,
	}
	if includeSchema && len(rows) > 0 {
		result.Schema = schema
	}
	if len(mappings) > 0 {
		result.TableMappings = mappings
	}
	return result, nil
}

// candidatePool validates explicit paths or scans the data root. Explicit
// paths that are missing or not parquet are dropped with a warning, matching
// the lenient contract: the caller finds out through files_used.
func (e *Executor) candidatePool(files []string) ([]string, error) {
	if len(files) == 0 {
		scanned, err := catalog.Scan(e.dataDir)
		if err != nil {
			return nil, errors.NewOperationError("data directory scan", err)
		}
		return catalog.Paths(scanned), nil
	}

	var pool []string
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".parquet") {
			e.logger.Warn("Ignoring missing or non-parquet file", "path", path)
			continue
		}
		pool = append(pool, path)
	}
	return pool, nil
}
