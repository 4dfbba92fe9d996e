// Package query executes ad-hoc SQL against materialized parquet files. It
// resolves bare table names to physical files, fuses multi-file datasets into
// union views, and guarantees every session and view is torn down on every
// exit path.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Limits are the safety settings applied to every session.
type Limits struct {
	MemoryLimit        string
	MaxExpressionDepth int
	TimeoutMs          int
}

// Session is one in-memory engine connection scoped to a single execution.
// It owns the views registered during resolution and drops them on Close.
type Session struct {
	db     *sql.DB
	views  []string
	logger *slog.Logger
}

// NewSession opens an in-memory engine and applies limits. The execution
// time ceiling is a capability probe: engine builds that do not know
// query_timeout_ms reject the SET and the rejection is ignored.
func NewSession(limits Limits, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open query engine: %w", err)
	}
	// Session settings do not propagate across pooled connections.
	db.SetMaxOpenConns(1)

	if limits.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", limits.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set memory limit: %w", err)
		}
	}
	if limits.MaxExpressionDepth > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET max_expression_depth=%d", limits.MaxExpressionDepth)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set expression depth: %w", err)
		}
	}
	if limits.TimeoutMs > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET query_timeout_ms=%d", limits.TimeoutMs)); err != nil {
			logger.Debug("Engine rejected query_timeout_ms, continuing without a ceiling", "error", err)
		}
	}

	return &Session{db: db, logger: logger}, nil
}

// Close drops every registered view, then the connection. Drop failures are
// ignored; the connection teardown releases them anyway.
func (s *Session) Close() {
	for _, name := range s.views {
		if _, err := s.db.Exec("DROP VIEW IF EXISTS " + name); err != nil {
			s.logger.Debug("Failed to drop view", "view", name, "error", err)
		}
	}
	s.views = nil
	if err := s.db.Close(); err != nil {
		s.logger.Debug("Failed to close session", "error", err)
	}
}

// registerView creates or replaces a view named name over the given files.
// A single file binds directly; multiple files bind as a row-wise union.
// View names come from the identifier regex in resolver.go, so interpolating
// them is safe.
func (s *Session) registerView(name string, files []string) error {
	if _, err := s.db.Exec("DROP VIEW IF EXISTS " + name); err != nil {
		return fmt.Errorf("failed to drop view %s: %w", name, err)
	}

	selects := make([]string, len(files))
	for i, file := range files {
		selects[i] = fmt.Sprintf("SELECT * FROM '%s'", escapePath(file))
	}
	stmt := fmt.Sprintf("CREATE VIEW %s AS %s", name, strings.Join(selects, " UNION ALL "))
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create view %s: %w", name, err)
	}

	s.views = append(s.views, name)
	return nil
}

// Schema pairs result column names with the engine's reported types.
type Schema struct {
	Columns []string          `json:"columns"`
	Types   map[string]string `json:"dtypes"`
}

// queryRows executes sqlQuery and materializes the full result as one map
// per row, along with the result schema.
func (s *Session) queryRows(ctx context.Context, sqlQuery string) ([]map[string]interface{}, *Schema, error) {
	rows, err := s.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	schema := &Schema{Columns: columns, Types: make(map[string]string, len(columns))}
	for i, col := range columns {
		schema.Types[col] = types[i].DatabaseTypeName()
	}
	return records, schema, nil
}

// escapePath doubles single quotes so a path is safe inside a SQL string
// literal.
func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
