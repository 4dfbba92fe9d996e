package query

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cryomcp/internal/errors"
)

// FileSchema describes one parquet file: its columns, a bounded sample, and
// a full row count.
type FileSchema struct {
	Success    bool                     `json:"success"`
	FilePath   string                   `json:"file_path"`
	Columns    []ColumnInfo             `json:"columns"`
	SampleData []map[string]interface{} `json:"sample_data"`
	RowCount   int64                    `json:"row_count"`
}

// ColumnInfo is one column name/type pair as the engine reports it.
type ColumnInfo struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// InspectFile reports the schema of one parquet file: column types from the
// engine's information schema, the first five rows, and a COUNT(*) — a full
// scan, acceptable for an explicit inspection call. The path must exist and
// end in .parquet; anything else is a precondition failure before the engine
// is touched.
func (e *Executor) InspectFile(ctx context.Context, filePath string) (*FileSchema, error) {
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() || !strings.HasSuffix(filePath, ".parquet") {
		return nil, errors.New(errors.FileNotFound,
			fmt.Sprintf("file not found or not a parquet file: %s", filePath), nil)
	}

	session, err := NewSession(e.limits, e.logger)
	if err != nil {
		return nil, errors.NewOperationError("schema inspection", err)
	}
	defer session.Close()

	if err := session.registerView("temp_view", []string{filePath}); err != nil {
		return nil, errors.NewQueryError(err.Error(), []string{filePath}, err)
	}

	columns, err := session.viewColumns(ctx, "temp_view")
	if err != nil {
		return nil, errors.NewQueryError(err.Error(), []string{filePath}, err)
	}

	sample, _, err := session.queryRows(ctx, "SELECT * FROM temp_view LIMIT 5")
	if err != nil {
		return nil, errors.NewQueryError(err.Error(), []string{filePath}, err)
	}

	var rowCount int64
	if err := session.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM temp_view").Scan(&rowCount); err != nil {
		return nil, errors.NewQueryError(err.Error(), []string{filePath}, err)
	}

	return &FileSchema{
		Success:    true,
		FilePath:   filePath,
		Columns:    columns,
		SampleData: sample,
		RowCount:   rowCount,
	}, nil
}

// viewColumns lists a registered view's columns from the information schema.
func (s *Session) viewColumns(ctx context.Context, view string) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position", view)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.ColumnName, &col.DataType); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
