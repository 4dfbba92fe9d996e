package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"cryomcp/internal/query"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *DatasetsResponseCLI:
		return formatDatasetsHuman(v)
	case *FetchResponseCLI:
		return formatFetchHuman(v)
	case *query.Result:
		return formatSQLHuman(v)
	case *query.FileSchema:
		return formatSchemaHuman(v)
	case *TablesResponseCLI:
		return formatTablesHuman(v)
	case *StatsResponseCLI:
		return formatStatsHuman(v)
	case *ConfigShowResponseCLI:
		return formatConfigHuman(v)
	default:
		text, err := formatJSON(resp)
		if err != nil {
			return "", err
		}
		return "Human format not available, showing JSON:\n" + text, nil
	}
}

func formatDatasetsHuman(resp *DatasetsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Available Datasets\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, name := range resp.Datasets {
		b.WriteString(fmt.Sprintf("  - %s\n", name))
	}
	b.WriteString(fmt.Sprintf("\n%d datasets\n", len(resp.Datasets)))

	return b.String(), nil
}

func formatFetchHuman(resp *FetchResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Fetched %s [%s]\n", resp.Dataset, resp.BlockRange))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Files: %d (%s, %dms)\n", resp.Count, resp.FileFormat, resp.DurationMs))
	for _, f := range resp.Files {
		b.WriteString(fmt.Sprintf("  - %s\n", f))
	}

	return b.String(), nil
}

func formatSQLHuman(resp *query.Result) (string, error) {
	var b strings.Builder

	b.WriteString("SQL Query Results\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Rows: %d\n", resp.RowCount))

	if len(resp.TableMappings) > 0 {
		b.WriteString("Tables:\n")
		for name, mapping := range resp.TableMappings {
			suffix := ""
			if mapping.Combined {
				suffix = ", combined"
			}
			b.WriteString(fmt.Sprintf("  %s: %d files%s\n", name, len(mapping.Files), suffix))
		}
	}
	b.WriteString("\n")

	// The result schema carries the column order the engine returned;
	// the row maps alone do not.
	if resp.Schema != nil && len(resp.Rows) > 0 {
		b.WriteString(strings.Join(resp.Schema.Columns, " | ") + "\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		for _, row := range resp.Rows {
			cells := make([]string, 0, len(resp.Schema.Columns))
			for _, col := range resp.Schema.Columns {
				cells = append(cells, formatCell(row[col]))
			}
			b.WriteString(strings.Join(cells, " | ") + "\n")
		}
	} else if len(resp.Rows) > 0 {
		rows, err := json.MarshalIndent(resp.Rows, "", "  ")
		if err != nil {
			return "", err
		}
		b.Write(rows)
		b.WriteString("\n")
	}

	if len(resp.FilesUsed) > 0 {
		b.WriteString("\nFiles used:\n")
		for _, f := range resp.FilesUsed {
			b.WriteString(fmt.Sprintf("  - %s\n", f))
		}
	}

	return b.String(), nil
}

func formatSchemaHuman(resp *query.FileSchema) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Schema: %s\n", resp.FilePath))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Rows: %d\n\n", resp.RowCount))

	width := 0
	for _, col := range resp.Columns {
		if len(col.ColumnName) > width {
			width = len(col.ColumnName)
		}
	}
	b.WriteString("Columns:\n")
	for _, col := range resp.Columns {
		b.WriteString(fmt.Sprintf("  %-*s  %s\n", width, col.ColumnName, col.DataType))
	}

	if len(resp.SampleData) > 0 {
		b.WriteString(fmt.Sprintf("\nSample (%d rows):\n", len(resp.SampleData)))
		sample, err := json.MarshalIndent(resp.SampleData, "", "  ")
		if err != nil {
			return "", err
		}
		b.Write(sample)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func formatTablesHuman(resp *TablesResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("SQL Tables in %s\n", resp.DataDir))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if len(resp.Files) == 0 {
		b.WriteString("No parquet files found. Extract data first with 'cryomcp fetch'.\n")
		return b.String(), nil
	}

	for _, f := range resp.Files {
		rangeText := f.BlockRange
		if rangeText == "" {
			rangeText = "-"
		}
		marker := ""
		if f.IsLatest {
			marker = " (latest)"
		}
		b.WriteString(fmt.Sprintf("  %-16s %-20s %10s  %s%s\n",
			f.Name, rangeText, formatBytes(f.SizeBytes), f.Path, marker))
	}
	b.WriteString(fmt.Sprintf("\n%d files\n", len(resp.Files)))

	return b.String(), nil
}

func formatStatsHuman(resp *StatsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Tool Usage\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Window: %s\n", resp.Window))
	if resp.Pruned > 0 {
		b.WriteString(fmt.Sprintf("Pruned: %d old records\n", resp.Pruned))
	}
	b.WriteString("\n")

	if len(resp.Tools) == 0 {
		b.WriteString("No tool calls recorded in this window.\n")
	} else {
		b.WriteString(fmt.Sprintf("  %-28s %7s %8s %9s\n", "TOOL", "CALLS", "FAILED", "AVG MS"))
		for _, tool := range resp.Tools {
			b.WriteString(fmt.Sprintf("  %-28s %7d %8d %9.1f\n",
				tool.ToolName, tool.CallCount, tool.FailureCount, tool.AvgLatencyMs()))
		}
	}

	b.WriteString(fmt.Sprintf("\nTotal records: %d", resp.TotalRecords))
	if resp.OldestRecord != "" && resp.NewestRecord != "" {
		b.WriteString(fmt.Sprintf(" (%s to %s)", resp.OldestRecord, resp.NewestRecord))
	}
	b.WriteString("\n")

	return b.String(), nil
}

func formatConfigHuman(resp *ConfigShowResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("cryomcp Configuration\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if resp.ConfigPath != "" {
		state := "not found, using defaults"
		if resp.FileExists {
			state = "present"
		}
		b.WriteString(fmt.Sprintf("Config file: %s (%s)\n\n", resp.ConfigPath, state))
	}

	cfg := resp.Config
	b.WriteString(fmt.Sprintf("rpc_url: %s\n", cfg.RPCURL))
	b.WriteString(fmt.Sprintf("data_dir: %s\n", cfg.DataDir))

	b.WriteString("\ncryo:\n")
	b.WriteString(fmt.Sprintf("  binary: %s\n", cfg.Cryo.Binary))

	b.WriteString("\nquery:\n")
	b.WriteString(fmt.Sprintf("  memory_limit: %s\n", cfg.Query.MemoryLimit))
	b.WriteString(fmt.Sprintf("  max_expression_depth: %d\n", cfg.Query.MaxExpressionDepth))
	b.WriteString(fmt.Sprintf("  timeout_ms: %d\n", cfg.Query.TimeoutMs))

	b.WriteString("\nlogging:\n")
	b.WriteString(fmt.Sprintf("  level: %s\n", cfg.Logging.Level))
	b.WriteString(fmt.Sprintf("  max_size: %s\n", cfg.Logging.MaxSize))
	b.WriteString(fmt.Sprintf("  max_backups: %d\n", cfg.Logging.MaxBackups))
	if cfg.Logging.Remote != nil && cfg.Logging.Remote.Enabled {
		b.WriteString(fmt.Sprintf("  remote: %s\n", cfg.Logging.Remote.Endpoint))
	}

	return b.String(), nil
}

// formatCell renders one result value for the tabular output.
func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// formatBytes formats byte size in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
